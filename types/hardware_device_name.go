// hardware_device_name.go defines the HardwareDeviceName type.

package types

type HardwareDeviceName string

func (n HardwareDeviceName) String() string {
	if n == "" {
		return "<default>"
	}
	return string(n)
}
