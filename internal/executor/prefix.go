package executor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/extract"
	"github.com/casualjim/strix/pkg/runstate"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/retrieval"
	"github.com/casualjim/strix/router"
)

func (e *Executor) startStage(decision router.Decision) Stage {
	return Step{
		StageName: "start",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			req := rc.Request()
			return e.emit(ctx, rc, events.StageStart, "run started", startPayload{
				Mode:       decision.Mode.String(),
				RouteScore: decision.Score,
				Reasons:    decision.Reasons,
				Forced:     decision.Forced,
				Files:      len(req.Files),
			})
		},
	}
}

// historyStage loads recent turns silently. On failure the run continues with
// an empty history and a history envelope explains why.
func (e *Executor) historyStage() Stage {
	return Step{
		StageName: "history",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			if rc.SessionID() == "" {
				rc.SetHistory(nil)
				return nil
			}
			turns, err := e.deps.History.Recent(ctx, rc.SessionID(), e.settings.HistoryLimit)
			if err != nil {
				return err
			}
			rc.SetHistory(turns)
			return nil
		},
		OnFailure: func(ctx context.Context, rc *runstate.Context, err error) {
			rc.SetHistory(nil)
			_ = e.emit(ctx, rc, events.StageHistory, "conversation history unavailable, continuing without it", historyPayload{
				Status: StatusFailed,
				Reason: err.Error(),
			})
		},
	}
}

func (e *Executor) filesStage() Stage {
	return Step{
		StageName: "files",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			urls := rc.Request().Files
			if len(urls) == 0 {
				rc.SetFiles(nil)
				return nil
			}
			processed := min(len(urls), e.deps.Extractor.MaxFiles())
			if err := e.emit(ctx, rc, events.StageFileExtractStart, "extracting attached files", fileStartPayload{
				Status:    StatusOK,
				Requested: len(urls),
				Files:     processed,
			}); err != nil {
				return err
			}

			files := e.deps.Extractor.Extract(ctx, urls, func(f extract.File) {
				p := fileItemPayload{
					Status:    StatusOK,
					Index:     f.Index,
					URL:       f.URL,
					Handler:   f.Handler,
					Chars:     f.Chars,
					Truncated: f.Truncated,
				}
				if !f.OK() {
					p.Status = StatusFailed
					p.Error = f.Err
					e.logger.WarnContext(ctx, "file extraction failed",
						slogx.RunID(rc.RunID()), slog.String("url", f.URL), slog.String("error", f.Err))
				}
				_ = e.emit(ctx, rc, events.StageFileExtractItem, "file processed", p)
			})
			rc.SetFiles(files)

			done := fileDonePayload{Status: StatusOK, Files: len(files)}
			for _, f := range files {
				if f.OK() {
					done.Succeeded++
					done.Chars += f.Chars
				} else {
					done.Failed++
				}
			}
			if done.Succeeded == 0 {
				done.Status = StatusFailed
			}
			return e.emit(ctx, rc, events.StageFileExtractDone, "file extraction finished", done)
		},
		OnFailure: func(ctx context.Context, rc *runstate.Context, err error) {
			rc.SetFiles(nil)
			_ = e.emit(ctx, rc, events.StageFileExtractDone, "file extraction skipped", fileDonePayload{
				Status: StatusFailed,
				Reason: err.Error(),
			})
		},
	}
}

func (e *Executor) ragStage() Stage {
	return Step{
		StageName: "rag",
		Do: func(ctx context.Context, rc *runstate.Context) error {
			question := strings.TrimSpace(rc.Request().Question)
			if question == "" {
				rc.SetDocuments(nil)
				return e.emit(ctx, rc, events.StageRAG, "nothing to search for", ragPayload{
					Status:    StatusSkipped,
					Documents: []documentRef{},
					Reason:    "empty question",
				})
			}
			hits, err := e.deps.Searcher.Search(ctx, question, e.settings.TopK, e.settings.MinScore)
			if err != nil {
				return err
			}
			hits = retrieval.Filter(hits, e.settings.MinScore, e.settings.MaxHits)
			rc.SetDocuments(hits)

			refs := make([]documentRef, len(hits))
			for i, h := range hits {
				refs[i] = documentRef{ID: h.ID, Source: h.Source, Score: h.Score}
			}
			return e.emit(ctx, rc, events.StageRAG, "knowledge base searched", ragPayload{
				Status:    StatusOK,
				Hits:      len(hits),
				Documents: refs,
			})
		},
		OnFailure: func(ctx context.Context, rc *runstate.Context, err error) {
			rc.SetDocuments(nil)
			_ = e.emit(ctx, rc, events.StageRAG, "knowledge base search failed, continuing without context", ragPayload{
				Status:    StatusFailed,
				Documents: []documentRef{},
				Reason:    err.Error(),
			})
		},
	}
}
