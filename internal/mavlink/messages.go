package mavlink

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/sweeney/delivery-sensor/internal/packet"
)

// servoPort is the SERVO_OUTPUT_RAW port field of outbound frames.
const servoPort = 1

// telemetryDialect holds the common dialect messages a session reads and
// writes. Anything else the flight controller sends is skipped.
var telemetryDialect = &dialect.Dialect{
	Version: 3,
	Messages: []message.Message{
		&common.MessageHeartbeat{},
		&common.MessageServoOutputRaw{},
	},
}

func newDialectRW() (*dialect.ReadWriter, error) {
	rw := &dialect.ReadWriter{Dialect: telemetryDialect}
	if err := rw.Initialize(); err != nil {
		return nil, err
	}
	return rw, nil
}

// servoOutputRaw carries the channels in servo1..16, the last eight in the
// MAVLink 2 extension fields.
func servoOutputRaw(ch [packet.Channels]uint16) *common.MessageServoOutputRaw {
	return &common.MessageServoOutputRaw{
		Port:       servoPort,
		Servo1Raw:  ch[0],
		Servo2Raw:  ch[1],
		Servo3Raw:  ch[2],
		Servo4Raw:  ch[3],
		Servo5Raw:  ch[4],
		Servo6Raw:  ch[5],
		Servo7Raw:  ch[6],
		Servo8Raw:  ch[7],
		Servo9Raw:  ch[8],
		Servo10Raw: ch[9],
		Servo11Raw: ch[10],
		Servo12Raw: ch[11],
		Servo13Raw: ch[12],
		Servo14Raw: ch[13],
		Servo15Raw: ch[14],
		Servo16Raw: ch[15],
	}
}
