package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/virtualpytest/pilot/pkg/core"
)

// PostgresStore implements Store over the server database. It expects the
// *sql.DB from database.Client.DB(), with migrations already applied.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by Postgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PlanCache() PlanCacheRepo { return &pgPlanCache{db: s.db} }

func (s *PostgresStore) LearnedMappings() LearnedMappingRepo { return &pgMappings{db: s.db} }

func (s *PostgresStore) NavigationTrees() NavigationTreeRepo { return &pgTrees{db: s.db} }

func (s *PostgresStore) TestCases() TestCaseRepo { return &pgTestCases{db: s.db} }

func (s *PostgresStore) ExecutionHistory() ExecutionHistoryRepo { return &pgHistory{db: s.db} }

// --- plan cache ---

type pgPlanCache struct {
	db *sql.DB
}

func (r *pgPlanCache) Upsert(ctx context.Context, entry *PlanCacheEntry) error {
	graphJSON, err := json.Marshal(entry.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal plan graph: %w", err)
	}
	now := time.Now()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lastUsed := entry.LastUsed
	if lastUsed.IsZero() {
		lastUsed = now
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO plan_cache (fingerprint, team_id, prompt, analysis, graph, use_count, created_at, last_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (fingerprint, team_id) DO UPDATE SET
		     prompt = EXCLUDED.prompt,
		     analysis = EXCLUDED.analysis,
		     graph = EXCLUDED.graph,
		     use_count = EXCLUDED.use_count,
		     last_used = EXCLUDED.last_used`,
		entry.Fingerprint, entry.TeamID, entry.Prompt, entry.Analysis, graphJSON,
		entry.UseCount, createdAt, lastUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan cache entry: %w", err)
	}
	return nil
}

func (r *pgPlanCache) GetByKey(ctx context.Context, fingerprint, teamID string) (*PlanCacheEntry, error) {
	entry := &PlanCacheEntry{}
	var graphJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT fingerprint, team_id, prompt, analysis, graph, use_count, created_at, last_used
		 FROM plan_cache WHERE fingerprint = $1 AND team_id = $2`,
		fingerprint, teamID,
	).Scan(&entry.Fingerprint, &entry.TeamID, &entry.Prompt, &entry.Analysis,
		&graphJSON, &entry.UseCount, &entry.CreatedAt, &entry.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errf(core.KindNotFound, "plan cache entry %s not found", fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan cache: %w", err)
	}
	if err := json.Unmarshal(graphJSON, &entry.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan graph: %w", err)
	}
	return entry, nil
}

func (r *pgPlanCache) Touch(ctx context.Context, fingerprint, teamID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_cache SET use_count = use_count + 1, last_used = now()
		 WHERE fingerprint = $1 AND team_id = $2`,
		fingerprint, teamID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch plan cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return core.Errf(core.KindNotFound, "plan cache entry %s not found", fingerprint)
	}
	return nil
}

func (r *pgPlanCache) DeleteOlderThan(ctx context.Context, lastUsedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM plan_cache WHERE last_used < $1`, lastUsedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale plan cache entries: %w", err)
	}
	return res.RowsAffected()
}

// --- learned mappings ---

type pgMappings struct {
	db *sql.DB
}

func (r *pgMappings) Upsert(ctx context.Context, m *LearnedMapping) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO learned_mapping (team_id, interface, phrase, resolved_node, usage_count, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, 1, now(), now())
		 ON CONFLICT (team_id, interface, phrase) DO UPDATE SET
		     resolved_node = EXCLUDED.resolved_node,
		     usage_count = learned_mapping.usage_count + 1,
		     last_used_at = now()`,
		m.TeamID, m.Interface, m.Phrase, m.ResolvedNode,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert learned mapping: %w", err)
	}
	return nil
}

func (r *pgMappings) GetBatch(ctx context.Context, teamID, iface string, phrases []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(phrases) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT phrase, resolved_node FROM learned_mapping
		 WHERE team_id = $1 AND interface = $2 AND phrase = ANY($3)`,
		teamID, iface, phrases,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var phrase, node string
		if err := rows.Scan(&phrase, &node); err != nil {
			return nil, fmt.Errorf("failed to scan learned mapping: %w", err)
		}
		out[phrase] = node
	}
	return out, rows.Err()
}

func (r *pgMappings) TouchBatch(ctx context.Context, teamID, iface string, phrases []string) error {
	if len(phrases) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE learned_mapping SET last_used_at = now()
		 WHERE team_id = $1 AND interface = $2 AND phrase = ANY($3)`,
		teamID, iface, phrases,
	)
	if err != nil {
		return fmt.Errorf("failed to touch learned mappings: %w", err)
	}
	return nil
}

func (r *pgMappings) DeleteOlderThan(ctx context.Context, lastUsedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM learned_mapping WHERE last_used_at < $1`, lastUsedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale learned mappings: %w", err)
	}
	return res.RowsAffected()
}

// --- navigation trees ---

type pgTrees struct {
	db *sql.DB
}

func (r *pgTrees) Upsert(ctx context.Context, tree *core.NavigationTree) error {
	nodesJSON, err := json.Marshal(tree.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal tree nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(tree.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal tree edges: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO navigation_tree (team_id, interface, tree_id, nodes, edges, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (team_id, interface) DO UPDATE SET
		     tree_id = EXCLUDED.tree_id,
		     nodes = EXCLUDED.nodes,
		     edges = EXCLUDED.edges,
		     updated_at = now()`,
		tree.TeamID, tree.Interface, tree.TreeID, nodesJSON, edgesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert navigation tree: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTree(row rowScanner) (*core.NavigationTree, error) {
	tree := &core.NavigationTree{}
	var nodesJSON, edgesJSON []byte
	err := row.Scan(&tree.TeamID, &tree.Interface, &tree.TreeID, &nodesJSON, &edgesJSON, &tree.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodesJSON, &tree.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &tree.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree edges: %w", err)
	}
	return tree, nil
}

func (r *pgTrees) GetByInterface(ctx context.Context, teamID, iface string) (*core.NavigationTree, error) {
	tree, err := scanTree(r.db.QueryRowContext(ctx,
		`SELECT team_id, interface, tree_id, nodes, edges, updated_at
		 FROM navigation_tree WHERE team_id = $1 AND interface = $2`,
		teamID, iface,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errf(core.KindNotFound, "navigation tree for interface %s not found", iface)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query navigation tree: %w", err)
	}
	return tree, nil
}

func (r *pgTrees) GetByTreeID(ctx context.Context, treeID string) (*core.NavigationTree, error) {
	tree, err := scanTree(r.db.QueryRowContext(ctx,
		`SELECT team_id, interface, tree_id, nodes, edges, updated_at
		 FROM navigation_tree WHERE tree_id = $1`,
		treeID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errf(core.KindNotFound, "navigation tree %s not found", treeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query navigation tree: %w", err)
	}
	return tree, nil
}

// mutateTree runs a read-modify-write cycle on one tree row. The row lock
// from SELECT ... FOR UPDATE serializes concurrent editors.
func (r *pgTrees) mutateTree(ctx context.Context, teamID, iface string, fn func(*core.NavigationTree)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tree, err := scanTree(tx.QueryRowContext(ctx,
		`SELECT team_id, interface, tree_id, nodes, edges, updated_at
		 FROM navigation_tree WHERE team_id = $1 AND interface = $2 FOR UPDATE`,
		teamID, iface,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Errf(core.KindNotFound, "navigation tree for interface %s not found", iface)
	}
	if err != nil {
		return fmt.Errorf("failed to lock navigation tree: %w", err)
	}

	fn(tree)

	nodesJSON, err := json.Marshal(tree.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal tree nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(tree.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal tree edges: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE navigation_tree SET nodes = $3, edges = $4, updated_at = now()
		 WHERE team_id = $1 AND interface = $2`,
		teamID, iface, nodesJSON, edgesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update navigation tree: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit navigation tree update: %w", err)
	}
	return nil
}

func (r *pgTrees) UpsertNode(ctx context.Context, teamID, iface string, node core.TreeNode) error {
	return r.mutateTree(ctx, teamID, iface, func(tree *core.NavigationTree) { applyNodeUpsert(tree, node) })
}

func (r *pgTrees) DeleteNode(ctx context.Context, teamID, iface, nodeID string) error {
	return r.mutateTree(ctx, teamID, iface, func(tree *core.NavigationTree) { applyNodeDelete(tree, nodeID) })
}

func (r *pgTrees) UpsertEdge(ctx context.Context, teamID, iface string, edge core.TreeEdge) error {
	return r.mutateTree(ctx, teamID, iface, func(tree *core.NavigationTree) { applyEdgeUpsert(tree, edge) })
}

func (r *pgTrees) DeleteEdge(ctx context.Context, teamID, iface, edgeID string) error {
	return r.mutateTree(ctx, teamID, iface, func(tree *core.NavigationTree) { applyEdgeDelete(tree, edgeID) })
}

// --- testcases ---

type pgTestCases struct {
	db *sql.DB
}

func (r *pgTestCases) Upsert(ctx context.Context, tc *TestCase) error {
	graphJSON, err := json.Marshal(tc.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal testcase graph: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO testcase (team_id, name, interface, graph, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (team_id, name) DO UPDATE SET
		     interface = EXCLUDED.interface,
		     graph = EXCLUDED.graph,
		     updated_at = now()`,
		tc.TeamID, tc.Name, tc.Interface, graphJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert testcase: %w", err)
	}
	return nil
}

func (r *pgTestCases) GetByKey(ctx context.Context, teamID, name string) (*TestCase, error) {
	tc := &TestCase{}
	var graphJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT team_id, name, interface, graph, created_at, updated_at
		 FROM testcase WHERE team_id = $1 AND name = $2`,
		teamID, name,
	).Scan(&tc.TeamID, &tc.Name, &tc.Interface, &graphJSON, &tc.CreatedAt, &tc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errf(core.KindNotFound, "testcase %s not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query testcase: %w", err)
	}
	if err := json.Unmarshal(graphJSON, &tc.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal testcase graph: %w", err)
	}
	return tc, nil
}

func (r *pgTestCases) List(ctx context.Context, teamID string, filter TestCaseFilter) ([]*TestCase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT team_id, name, interface, graph, created_at, updated_at
		 FROM testcase
		 WHERE team_id = $1 AND ($2 = '' OR interface = $2)
		 ORDER BY name
		 LIMIT NULLIF($3, 0)`,
		teamID, filter.Interface, filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list testcases: %w", err)
	}
	defer rows.Close()

	var out []*TestCase
	for rows.Next() {
		tc := &TestCase{}
		var graphJSON []byte
		if err := rows.Scan(&tc.TeamID, &tc.Name, &tc.Interface, &graphJSON, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan testcase: %w", err)
		}
		if err := json.Unmarshal(graphJSON, &tc.Graph); err != nil {
			return nil, fmt.Errorf("failed to unmarshal testcase graph: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (r *pgTestCases) Delete(ctx context.Context, teamID, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM testcase WHERE team_id = $1 AND name = $2`, teamID, name)
	if err != nil {
		return fmt.Errorf("failed to delete testcase: %w", err)
	}
	return nil
}

// --- execution history ---

type pgHistory struct {
	db *sql.DB
}

func (r *pgHistory) Upsert(ctx context.Context, entry *HistoryEntry) error {
	var resultJSON []byte
	if entry.Result != nil {
		var err error
		resultJSON, err = json.Marshal(entry.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal execution result: %w", err)
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO execution_history
		     (execution_id, team_id, kind, host_name, device_id, status, progress,
		      started_at, completed_at, result, logs, error_kind, error_msg, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (execution_id) DO UPDATE SET
		     status = EXCLUDED.status,
		     progress = EXCLUDED.progress,
		     started_at = EXCLUDED.started_at,
		     completed_at = EXCLUDED.completed_at,
		     result = EXCLUDED.result,
		     logs = EXCLUDED.logs,
		     error_kind = EXCLUDED.error_kind,
		     error_msg = EXCLUDED.error_msg`,
		entry.ExecutionID, entry.TeamID, entry.Kind, entry.HostName, entry.DeviceID,
		entry.Status, entry.Progress, entry.StartedAt, entry.CompletedAt,
		resultJSON, entry.Logs, entry.ErrorKind, entry.ErrorMsg, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert execution history: %w", err)
	}
	return nil
}

func (r *pgHistory) GetByKey(ctx context.Context, executionID string) (*HistoryEntry, error) {
	entry, err := scanHistory(r.db.QueryRowContext(ctx,
		`SELECT execution_id, team_id, kind, host_name, device_id, status, progress,
		        started_at, completed_at, result, logs, error_kind, error_msg, created_at
		 FROM execution_history WHERE execution_id = $1`,
		executionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.Errf(core.KindNotFound, "execution %s not found", executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	return entry, nil
}

func (r *pgHistory) ListRecent(ctx context.Context, teamID string, limit int) ([]*HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT execution_id, team_id, kind, host_name, device_id, status, progress,
		        started_at, completed_at, result, logs, error_kind, error_msg, created_at
		 FROM execution_history
		 WHERE ($1 = '' OR team_id = $1)
		 ORDER BY created_at DESC, execution_id
		 LIMIT NULLIF($2, 0)`,
		teamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution history: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanHistory(row rowScanner) (*HistoryEntry, error) {
	entry := &HistoryEntry{}
	var resultJSON []byte
	err := row.Scan(&entry.ExecutionID, &entry.TeamID, &entry.Kind, &entry.HostName,
		&entry.DeviceID, &entry.Status, &entry.Progress, &entry.StartedAt,
		&entry.CompletedAt, &resultJSON, &entry.Logs, &entry.ErrorKind,
		&entry.ErrorMsg, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
	}
	return entry, nil
}

func (r *pgHistory) DeleteOlderThan(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM execution_history WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale execution history: %w", err)
	}
	return res.RowsAffected()
}
