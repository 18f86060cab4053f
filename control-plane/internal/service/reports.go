package service

import (
	"context"
	"time"

	"github.com/pilot-net/sdn-balance/pkg/bus"
)

// Consumer is the part of the bus the service reads reports from.
type Consumer interface {
	Consume(ctx context.Context, channel string, h bus.Handler) error
}

// HandleReport is the bus handler for the reports channel. Malformed payloads
// are counted and dropped.
func (s *Service) HandleReport(ctx context.Context, payload []byte) error {
	snap, err := bus.DecodeSnapshot(payload)
	if err != nil {
		s.metrics.MalformedMessage(bus.ChannelReports)
		s.logger.Warn("dropping malformed snapshot", "error", err)
		return err
	}
	s.OnSnapshot(ctx, snap)
	return nil
}

// ConsumeReports feeds the reports channel into the service until ctx is
// done, reconnecting after a monitor period if the consumer fails.
func (s *Service) ConsumeReports(ctx context.Context, c Consumer) error {
	for {
		err := c.Consume(ctx, bus.ChannelReports, s.HandleReport)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("report consumer stopped, retrying", "error", err, "retry_in", s.cfg.MonitorPeriod)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.MonitorPeriod):
		}
	}
}
