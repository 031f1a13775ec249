package command

import "fmt"

const testCommand = uint16(0x8000)

const (
	MessageGetVersion   = uint16(0x0002)
	MessageHealthCheck  = uint16(0x0019)
	MessageGetHWVersion = uint16(0x0027)

	MessageForceAssert = testCommand | uint16(0x0009)
)

func IsTestCommand(id uint16) bool {
	return id&testCommand == testCommand
}

func MessageString(id uint16) string {
	switch id {
	case MessageGetVersion:
		return "GetVersion"
	case MessageHealthCheck:
		return "HealthCheck"
	case MessageGetHWVersion:
		return "GetHWVersion"
	case MessageForceAssert:
		return "ForceAssert"
	}
	return fmt.Sprintf("Message(0x%04x)", id)
}
