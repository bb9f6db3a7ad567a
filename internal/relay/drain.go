package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/store"
	"github.com/roach88/edgerelay/internal/transport"
)

// accepted reports whether a status code lets the cycle go on.
func accepted(code int) bool {
	switch code {
	case http.StatusOK,
		http.StatusAccepted,
		http.StatusPreconditionFailed,
		http.StatusRequestEntityTooLarge:
		return true
	default:
		return false
	}
}

// drainConfigs sends every pending configuration category until none is
// left. Each pending set is consumed as a whole: its id span is deleted
// after all categories were attempted, whatever their outcome, and the
// first failure then aborts the cycle.
func (s *Scheduler) drainConfigs(ctx context.Context) error {
	for {
		pending, err := s.configs.ReadAllPending(ctx)
		if err != nil {
			return err
		}
		if pending.Empty() {
			return nil
		}

		groups := sortedGroups(pending.Groups)

		var sendErr error
		for _, group := range groups {
			if err := s.sendConfig(ctx, group); err != nil && sendErr == nil {
				sendErr = err
			}
		}

		if err := s.configs.DeleteRange(ctx, pending.MinID, pending.MaxID); err != nil {
			return errors.Join(sendErr, err)
		}
		if sendErr != nil {
			return sendErr
		}
	}
}

// sendConfig posts one category group.
func (s *Scheduler) sendConfig(ctx context.Context, group store.ConfigGroup) error {
	url := s.cfg.Endpoints.ConfigurationURL(group.Category)
	resp, err := s.client.Send(ctx, url, group.Items)
	if err != nil {
		return fmt.Errorf("send %s: %w", group.Category, err)
	}
	if !accepted(resp.StatusCode) {
		return fmt.Errorf("send %s: %w", group.Category, transport.NewTransportError(resp))
	}
	s.output.Forward(resp)

	if resp.StatusCode == http.StatusPreconditionFailed {
		result, _ := resp.First()
		s.logger.Warn("configuration precondition failed",
			"category", string(group.Category), "message", result.Message)
	}
	s.logger.Debug("configuration sent",
		"category", string(group.Category), "items", len(group.Items), "status", resp.StatusCode)
	return nil
}

// drainQueue pages through the telemetry queue. It keeps going while the
// previous package was full and completely processed, and stops at the
// first short or partially accepted package.
func (s *Scheduler) drainQueue(ctx context.Context) error {
	for {
		limit := s.PackageSize()

		readStart := s.clock.Now()
		batch, err := s.queue.ReadBatch(ctx, limit)
		if err != nil {
			return err
		}
		count := batch.Len()
		s.logger.Debug("read items", "count", count, "duration", s.clock.Now().Sub(readStart))

		if count == 0 {
			switch s.Status() {
			case model.StatusConnected:
				s.setStatus(model.StatusNoData)
			case model.StatusSending:
				s.setStatus(model.StatusConnected)
			}
			return nil
		}

		s.setStatus(model.StatusSending)

		sendStart := s.clock.Now()
		resp, err := s.client.Send(ctx, s.cfg.Endpoints.ThingURL, payloads(batch.Items))
		if err != nil {
			return err
		}
		if !accepted(resp.StatusCode) {
			return transport.NewTransportError(resp)
		}
		s.output.Forward(resp)
		s.logger.Debug("sent items",
			"count", count, "status", resp.StatusCode, "duration", s.clock.Now().Sub(sendStart))

		result, _ := resp.First()
		previousSize := limit
		if result.MaxAllowedItems != nil {
			s.adjustPackageSize(*result.MaxAllowedItems)
		}

		consumed := s.consumed(resp.StatusCode, result, count)
		if consumed > 0 {
			if err := s.queue.Delete(ctx, batch.IDs[:consumed]); err != nil {
				return err
			}
		}

		switch resp.StatusCode {
		case http.StatusPreconditionFailed:
			precondition := &PreconditionError{Message: result.Message}
			s.logger.Error("precondition failed", "error", precondition)
			s.output.Error(precondition)

		case http.StatusRequestEntityTooLarge:
			s.logger.Debug("package too large",
				"message", result.Message, "package_size", s.PackageSize())
			if s.PackageSize() < previousSize {
				continue
			}
			s.logger.Warn("package rejected as too large without a smaller limit, retrying next cycle",
				"package_size", s.PackageSize())
			s.setStatus(model.StatusConnected)
			return nil
		}

		if count != limit || consumed != count {
			s.setStatus(model.StatusConnected)
			return nil
		}
	}
}

// adjustPackageSize applies the server's max_allowed_items, clamped to
// [1, MaxItemsCeiling].
func (s *Scheduler) adjustPackageSize(maxAllowed int) {
	size := min(max(maxAllowed, 1), s.cfg.MaxItemsCeiling)
	if size == s.PackageSize() {
		return
	}
	s.logger.Info("package size changed by server", "from", s.PackageSize(), "to", size)
	s.packageSize.Store(int64(size))
}

// consumed returns how many leading items of a package of count items
// the server has processed and may be deleted.
func (s *Scheduler) consumed(status int, result transport.Result, count int) int {
	if status == http.StatusRequestEntityTooLarge {
		if !s.cfg.DeleteOnOversize || result.CurrentItemIndex == nil {
			return 0
		}
	} else if result.CurrentItemIndex == nil {
		return count
	}
	index := min(max(*result.CurrentItemIndex, -1), count-1)
	return index + 1
}

// sortedGroups returns groups in drain priority order.
func sortedGroups(groups []store.ConfigGroup) []store.ConfigGroup {
	byCategory := make(map[model.Category]store.ConfigGroup, len(groups))
	categories := make([]model.Category, 0, len(groups))
	for _, g := range groups {
		byCategory[g.Category] = g
		categories = append(categories, g.Category)
	}
	model.SortCategories(categories)

	out := make([]store.ConfigGroup, len(categories))
	for i, c := range categories {
		out[i] = byCategory[c]
	}
	return out
}
