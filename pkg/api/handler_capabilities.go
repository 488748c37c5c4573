package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/adapters"
)

// listActionsHandler handles GET /api/v1/capabilities/actions. The command
// list derives from the capabilities the host reported at registration.
func (s *Server) listActionsHandler(c *echo.Context) error {
	hostName := c.QueryParam("host_name")
	deviceID := c.QueryParam("device_id")
	if hostName == "" || deviceID == "" {
		return invalidInput(c, "host_name and device_id are required")
	}
	device, err := s.registry.Device(hostName, deviceID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &CapabilityResponse{
		DeviceID:    device.DeviceID,
		DeviceModel: device.DeviceModel,
		Items:       adapters.CommandsFor(device.Capabilities),
		RemoteKeys:  device.Capabilities.RemoteKeys,
	})
}

// listVerificationsHandler handles GET /api/v1/capabilities/verifications.
func (s *Server) listVerificationsHandler(c *echo.Context) error {
	hostName := c.QueryParam("host_name")
	deviceID := c.QueryParam("device_id")
	if hostName == "" || deviceID == "" {
		return invalidInput(c, "host_name and device_id are required")
	}
	device, err := s.registry.Device(hostName, deviceID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, &CapabilityResponse{
		DeviceID:    device.DeviceID,
		DeviceModel: device.DeviceModel,
		Items:       device.Capabilities.Verifications,
	})
}
