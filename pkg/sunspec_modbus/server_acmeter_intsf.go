package sunspec_modbus

import (
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// SetpointFunc applies a power setpoint in kW received on the setpoint registers.
type SetpointFunc func(powerKW float64) error

// ACMeterRequestHandler serves an ACMeterImage as holding registers, plus the
// read/write setpoint at SETPOINT_ADDRESS.
type ACMeterRequestHandler struct {
	image    *ACMeterImage
	setpoint SetpointFunc
	logger   *zap.Logger
}

func NewACMeterRequestHandler(image *ACMeterImage, setpoint SetpointFunc, logger *zap.Logger) *ACMeterRequestHandler {
	return &ACMeterRequestHandler{
		image:    image,
		setpoint: setpoint,
		logger:   logger,
	}
}

func (h *ACMeterRequestHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *ACMeterRequestHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *ACMeterRequestHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *ACMeterRequestHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	h.logger.Debug("modbus request",
		zap.String("client", req.ClientAddr),
		zap.Uint16("addr", req.Addr),
		zap.Uint16("quantity", req.Quantity),
		zap.Bool("write", req.IsWrite))

	if req.Addr < SETPOINT_ADDRESS+2 && req.Addr+req.Quantity > SETPOINT_ADDRESS {
		return h.handleSetpoint(req)
	}
	if req.IsWrite {
		return nil, modbus.ErrIllegalDataAddress
	}
	return h.image.Registers(req.Addr, req.Quantity)
}

func (h *ACMeterRequestHandler) handleSetpoint(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.Addr != SETPOINT_ADDRESS || req.Quantity != 2 {
		return nil, modbus.ErrIllegalDataAddress
	}
	if !req.IsWrite {
		hi, lo := splitWords(uint32(h.image.PowerWatt()))
		return []uint16{hi, lo}, nil
	}
	if len(req.Args) != 2 {
		return nil, modbus.ErrIllegalDataValue
	}
	watts := int32(joinWords(req.Args[0], req.Args[1]))
	if watts > SETPOINT_LIMIT_WATTS || watts < -SETPOINT_LIMIT_WATTS {
		h.logger.Warn("modbus setpoint out of range", zap.Int32("watts", watts))
		return nil, modbus.ErrIllegalDataValue
	}
	if err := h.setpoint(float64(watts) / 1000); err != nil {
		h.logger.Error("modbus setpoint failed", zap.Error(err))
		return nil, modbus.ErrServerDeviceFailure
	}
	return nil, nil
}

// ACMeterServer exposes an ACMeterImage over Modbus TCP.
type ACMeterServer struct {
	server *modbus.ModbusServer
}

func CreateACMeterServer(url string, maxClients uint, timeout time.Duration, handler *ACMeterRequestHandler) (*ACMeterServer, error) {
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    timeout,
		MaxClients: maxClients,
	}, handler)
	if err != nil {
		return nil, err
	}
	return &ACMeterServer{server: server}, nil
}

func (s *ACMeterServer) Start() error {
	return s.server.Start()
}

func (s *ACMeterServer) Stop() error {
	return s.server.Stop()
}
