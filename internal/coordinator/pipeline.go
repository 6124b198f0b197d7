package coordinator

import (
	"context"
	"log/slog"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/session"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/transcript"
)

// Pipeline is the external post-processing collaborator a finished
// recording is handed to: final transcription, diarization, and
// summarization live behind this boundary. Process receives the ordered
// chunk paths and the partial transcript store, and calls advance as it
// moves through the processing stages. Returning an error moves the
// session to the error state; returning nil acknowledges completion.
type Pipeline interface {
	Process(ctx context.Context, snap Snapshot, chunkPaths []string, store *transcript.Store, advance func(session.ProcessingStage)) error
}

// NoopPipeline steps through every processing stage without doing any
// work. It is the default when no external pipeline is wired in.
type NoopPipeline struct {
	Logger *slog.Logger
}

// Process advances through all stages and acknowledges immediately.
func (p NoopPipeline) Process(ctx context.Context, snap Snapshot, chunkPaths []string, store *transcript.Store, advance func(session.ProcessingStage)) error {
	for _, stage := range []session.ProcessingStage{
		session.StageTranscribing,
		session.StageDiarizing,
		session.StageSummarizing,
		session.StageComplete,
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		advance(stage)
	}

	if p.Logger != nil {
		p.Logger.Info("Post-processing skipped, no pipeline configured",
			slog.String("session_id", snap.SessionID),
			slog.Int("chunks", len(chunkPaths)),
		)
	}
	return nil
}
