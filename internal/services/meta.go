package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/apierr"
	"github.com/interteks/loomtrack/internal/platform/logger"
	"github.com/interteks/loomtrack/internal/realtime"
)

const (
	CutModeAdd = "add"
	CutModeSet = "set"
)

// MetaInput replaces every descriptive field of a loom. Missing fields are
// stored empty, invalid or negative lengths as zero.
type MetaInput struct {
	LoomID          string           `json:"loomId"`
	Pattern         string           `json:"pattern"`
	WeftDensity     string           `json:"weftDensity"`
	Speed           string           `json:"speed"`
	OrderedLength   loom.LengthInput `json:"orderedLength"`
	DeliveredLength loom.LengthInput `json:"deliveredLength"`
}

type CutLengthInput struct {
	LoomID string           `json:"loomId"`
	Length loom.LengthInput `json:"length"`
	Mode   string           `json:"mode"`
}

type MetaService interface {
	List(ctx context.Context) ([]MetaView, error)
	Upsert(ctx context.Context, in MetaInput) (MetaView, error)
	CutLength(ctx context.Context, in CutLengthInput) (CutLengthResult, error)
}

type metaService struct {
	log      *logger.Logger
	backend  store.MetaStore
	notifier realtime.Notifier
}

func NewMetaService(log *logger.Logger, backend store.MetaStore, notifier realtime.Notifier) MetaService {
	return &metaService{
		log:      log.With("service", "MetaService"),
		backend:  backend,
		notifier: notifier,
	}
}

func (s *metaService) List(ctx context.Context) ([]MetaView, error) {
	metas, err := s.backend.ListMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("list meta: %w", err)
	}
	out := make([]MetaView, 0, len(metas))
	for _, m := range metas {
		out = append(out, metaView(m))
	}
	return out, nil
}

func (s *metaService) Upsert(ctx context.Context, in MetaInput) (MetaView, error) {
	loomID := strings.TrimSpace(in.LoomID)
	if loomID == "" {
		return MetaView{}, apierr.BadRequest("missing_loom_id", errors.New("loomId is required"))
	}
	saved, err := s.backend.UpsertMeta(ctx, loom.Meta{
		LoomID:          loomID,
		Pattern:         strings.TrimSpace(in.Pattern),
		WeftDensity:     strings.TrimSpace(in.WeftDensity),
		Speed:           strings.TrimSpace(in.Speed),
		OrderedLength:   loom.LenientLength(in.OrderedLength.Raw),
		DeliveredLength: loom.LenientLength(in.DeliveredLength.Raw),
	})
	if err != nil {
		return MetaView{}, fmt.Errorf("upsert meta: %w", err)
	}
	s.notifier.Publish(ctx, realtime.MetaEvent(loomID))
	s.log.Info("Loom meta saved", "loom_id", loomID)
	return metaView(saved), nil
}

// CutLength records delivered fabric. In add mode the length is added to the
// delivered total, in set mode it replaces it.
func (s *metaService) CutLength(ctx context.Context, in CutLengthInput) (CutLengthResult, error) {
	loomID := strings.TrimSpace(in.LoomID)
	if loomID == "" {
		return CutLengthResult{}, apierr.BadRequest("missing_loom_id", errors.New("loomId is required"))
	}
	if !in.Length.Present() {
		return CutLengthResult{}, apierr.BadRequest("missing_length", errors.New("length is required"))
	}
	length, err := loom.ParseLength(in.Length.Raw)
	if err != nil {
		return CutLengthResult{}, apierr.BadRequest("invalid_length", err)
	}
	mode := CutModeAdd
	if strings.EqualFold(strings.TrimSpace(in.Mode), CutModeSet) {
		mode = CutModeSet
	}

	saved, err := s.backend.UpdateMeta(ctx, loomID, func(m *loom.Meta) error {
		if mode == CutModeSet {
			m.DeliveredLength = length
		} else {
			m.DeliveredLength = m.DeliveredLength.Add(length)
		}
		return nil
	})
	if err != nil {
		return CutLengthResult{}, fmt.Errorf("update meta: %w", err)
	}
	s.notifier.Publish(ctx, realtime.MetaEvent(loomID))
	s.log.Info("Cut length recorded", "loom_id", loomID, "mode", mode, "length", length.StringFixed(2))

	return CutLengthResult{
		LoomID:          loomID,
		OrderedLength:   saved.OrderedLength,
		DeliveredLength: saved.DeliveredLength,
		RemainingLength: saved.RemainingLength(),
		Mode:            mode,
	}, nil
}
