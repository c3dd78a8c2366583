package alpha

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/rollup"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
)

// Provider turns Alpha Progression CSV exports into completed sessions. Each
// imported set goes through the record engine in chronological order and each
// session is folded into the statistics, as if it had been logged live.
type Provider struct {
	store        store.Store
	records      *records.Engine
	rollup       *rollup.Aggregator
	metrics      *metrics.Manager
	log          *slog.Logger
	loc          *time.Location
	muscleGroups map[string]string
	newID        func() uuid.UUID
}

// NewProvider creates a new Alpha Progression ingest provider. muscleGroups
// maps exported exercise names (case-insensitive) to muscle groups; export
// times are read in loc.
func NewProvider(st store.Store, agg *rollup.Aggregator, m *metrics.Manager, log *slog.Logger, loc *time.Location, muscleGroups map[string]string) *Provider {
	if loc == nil {
		loc = time.UTC
	}
	groups := make(map[string]string, len(muscleGroups))
	for name, group := range muscleGroups {
		groups[strings.ToLower(name)] = group
	}
	return &Provider{
		store:        st,
		records:      records.NewEngine(),
		rollup:       agg,
		metrics:      m,
		log:          log,
		loc:          loc,
		muscleGroups: groups,
		newID:        uuid.New,
	}
}

// Ingest parses a CSV export and stores every session not imported before.
// A session counts as imported when a completed session with the same title
// and start time exists.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	parsed, err := ParseIn(r, p.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].Date.Before(parsed[j].Date) })

	result := &ingest.Result{SessionsReceived: len(parsed)}
	for _, as := range parsed {
		exists, err := p.imported(ctx, userID, as)
		if err != nil {
			return result, err
		}
		if exists {
			result.SessionsSkipped++
			continue
		}

		sess := p.convert(userID, as)
		if len(sess.Exercises) == 0 {
			result.SessionsSkipped++
			continue
		}

		var broken int
		err = p.store.RunInTx(ctx, func(tx store.Store) error {
			if err := tx.CreateSession(ctx, sess); err != nil {
				return err
			}
			for i := range sess.Exercises {
				ex := &sess.Exercises[i]
				for j := range ex.Sets {
					set := &ex.Sets[j]
					logs, err := p.records.Evaluate(ctx, tx, sess, ex, set, *set.CompletedAt)
					if err != nil {
						return err
					}
					broken += len(logs)
				}
			}
			_, err := p.rollup.Fold(ctx, tx, sess)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("importing session %q of %s: %w", as.Name, as.Date.Format("2006-01-02"), err)
		}

		result.SessionsImported++
		result.SetsImported += sess.TotalSets
		result.RecordsBroken += broken
		p.metrics.CounterImportedSessions.Inc()
		p.log.Debug("imported session", "user_id", userID, "title", as.Name, "date", as.Date, "records", broken)
	}

	p.log.Info("alpha import finished",
		"user_id", userID,
		"received", result.SessionsReceived,
		"imported", result.SessionsImported,
		"skipped", result.SessionsSkipped,
		"records", result.RecordsBroken,
	)
	return result, nil
}

func (p *Provider) imported(ctx context.Context, userID int, as models.AlphaSession) (bool, error) {
	end := as.Date.Add(time.Minute)
	existing, _, err := p.store.ListSessions(ctx, userID, models.SessionQuery{
		Status: models.StatusCompleted,
		Start:  &as.Date,
		End:    &end,
	})
	if err != nil {
		return false, fmt.Errorf("checking for imported session: %w", err)
	}
	for _, s := range existing {
		if s.Title == as.Name {
			return true, nil
		}
	}
	return false, nil
}

// convert builds a completed session. Set completion times are spread evenly
// over the exported duration; the export carries no rest periods.
func (p *Provider) convert(userID int, as models.AlphaSession) *models.WorkoutSession {
	sess := &models.WorkoutSession{
		ID:        p.newID(),
		UserID:    userID,
		Title:     as.Name,
		StartedAt: as.Date,
		Status:    models.StatusInProgress,
		Exercises: []models.SessionExercise{},
	}

	var total int
	for _, ae := range as.Exercises {
		total += len(ae.Sets)
	}
	if total == 0 {
		return sess
	}
	duration := time.Duration(as.DurationSec) * time.Second
	if duration <= 0 {
		duration = time.Duration(total) * time.Minute
	}
	step := duration / time.Duration(total)

	var n int
	for order, ae := range as.Exercises {
		ex := models.SessionExercise{
			ID:          p.newID(),
			Name:        ae.Name,
			MuscleGroup: p.muscleGroups[strings.ToLower(ae.Name)],
			Notes:       ae.Equipment,
			Order:       order,
			Sets:        make([]models.SessionSet, 0, len(ae.Sets)),
		}
		for i, aset := range ae.Sets {
			n++
			at := sess.StartedAt.Add(time.Duration(n) * step)
			weight, reps := aset.WeightKg, aset.Reps
			set := models.SessionSet{
				ID:             p.newID(),
				Order:          i,
				Type:           models.SetWorking,
				ActualWeight:   &weight,
				ActualWeightKg: &weight,
				ActualReps:     &reps,
				CompletedAt:    &at,
			}
			if aset.IsWarmup {
				set.Type = models.SetWarmup
			} else {
				rpe := 10 - aset.RIR
				set.RPE = &rpe
			}
			if i == 0 {
				ex.StartedAt = &at
			}
			ex.Sets = append(ex.Sets, set)
			ex.CompletedAt = &at
		}
		sess.Exercises = append(sess.Exercises, ex)
	}

	sess.Finalize(sess.StartedAt.Add(duration), "")
	return sess
}
