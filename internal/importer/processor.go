package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/catdadcode/pdk-data-importer/internal/config"
	"github.com/catdadcode/pdk-data-importer/internal/directory"
	"github.com/catdadcode/pdk-data-importer/internal/logging"
)

// Service runs one processing unit per uploaded file: decode the staged
// payload, reconcile every row, stream status updates, and finish with
// either a report or the combined error list. A shared limiter caps how
// many files run at once across all connections.
type Service struct {
	cfg        config.ImportConfig
	reconciler *Reconciler
	limiter    *ImportLimiter
}

// NewService builds a Service over the given store and domain checker.
func NewService(cfg config.ImportConfig, repo directory.Repository, mail DomainChecker) *Service {
	return &Service{
		cfg:        cfg,
		reconciler: NewReconciler(repo, mail),
		limiter:    NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
	}
}

// WaitForDrain blocks until every active import has finished.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ActiveImports returns the number of files currently being processed.
func (s *Service) ActiveImports() int {
	return s.limiter.ActiveCount()
}

// Start launches the processing unit for one staged file. It acquires a
// processing slot synchronously (so upload pressure surfaces as an error
// on the owning connection) and then processes asynchronously, emitting
// StatusUpdate events on the returned channel. The channel is closed when
// the unit finishes; the caller must drain it. The staged file is removed
// when processing ends.
func (s *Service) Start(ctx context.Context, fileName, stagedPath string) (<-chan StatusUpdate, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	events := make(chan StatusUpdate, 64)

	go func() {
		log := logging.FromContext(ctx).With("file", fileName)

		defer close(events)
		defer s.limiter.Release()
		defer func() {
			if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove staged file", "path", stagedPath, "error", err)
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				log.Error("import panicked", "panic", fmt.Sprintf("%v", r))
				events <- s.statusEvent(fileName, MsgImportFailed)
			}
		}()

		s.process(ctx, log, fileName, stagedPath, events)
	}()

	return events, nil
}

func (s *Service) process(ctx context.Context, log *slog.Logger, fileName, stagedPath string, events chan<- StatusUpdate) {
	data, err := os.ReadFile(stagedPath)
	if err != nil {
		log.Error("failed to read staged file", "path", stagedPath, "error", err)
		events <- s.statusEvent(fileName, MsgImportFailed)
		return
	}

	rows, err := DecodeRows(fileName, data)
	if err != nil {
		log.Warn("failed to decode file", "error", err)
		if err == ErrUnsupportedFormat {
			events <- s.statusEvent(fileName, MsgUnsupportedFormat)
		} else {
			events <- s.statusEvent(fileName, MsgImportFailed)
		}
		return
	}

	if len(rows) > s.cfg.MaxRows {
		log.Warn("file exceeds row limit", "rows", len(rows), "max", s.cfg.MaxRows)
		events <- s.statusEvent(fileName, tooManyRowsMessage(s.cfg.MaxRows))
		return
	}

	log.Info("processing file", "rows", len(rows))
	start := time.Now()

	results := make([]ProcessResult, len(rows))
	var completed atomic.Int64

	// Rows targeting the same person are serialized on their resolved
	// identity; everything else fans out up to RowWorkers wide.
	locks := newKeyLock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RowWorkers)

	for i, row := range rows {
		g.Go(func() (err error) {
			// A panicking row worker aborts the file, not the process.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("row worker panic: %v", r)
				}
			}()

			if s.cfg.RowDelay > 0 {
				select {
				case <-time.After(s.cfg.RowDelay):
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			if key := row.key(); key != "" {
				unlock := locks.Lock(key)
				defer unlock()
			}

			result := s.reconciler.Reconcile(gctx, fileName, row)
			results[i] = result

			if result.Status == ResultError {
				events <- s.statusEvent(fileName, result.Error)
			}

			done := completed.Add(1)
			progress := float64(done) / float64(len(rows)) * 100
			update := s.statusEvent(fileName, MsgProcessing)
			update.Progress = Progress(progress)
			events <- update

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("import aborted", "error", err)
		events <- s.statusEvent(fileName, MsgImportFailed)
		return
	}

	report := ImportReport{}
	var rowErrors []string
	for _, result := range results {
		switch result.Status {
		case ResultCreate:
			report.RecordsCreated++
			report.CredentialCount += result.Invites
		case ResultUpdate:
			report.RecordsUpdated++
			report.CredentialCount += result.Invites
		case ResultError:
			rowErrors = append(rowErrors, result.Error)
		}
	}

	log.Info("file processed",
		"created", report.RecordsCreated,
		"updated", report.RecordsUpdated,
		"invites", report.CredentialCount,
		"errors", len(rowErrors),
		"duration", time.Since(start),
	)

	if len(rowErrors) > 0 {
		events <- s.statusEvent(fileName, msgFileHasErrors+"\n"+strings.Join(rowErrors, "\n"))
		return
	}

	done := s.statusEvent(fileName, MsgDone)
	done.Report = &report
	events <- done
}

func (s *Service) statusEvent(fileName, status string) StatusUpdate {
	return StatusUpdate{
		Action:   ActionStatusUpdate,
		FileName: fileName,
		Status:   status,
	}
}
