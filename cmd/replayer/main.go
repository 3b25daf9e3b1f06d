// Command replayer is the process entrypoint: it wires configuration,
// logging, the RPC facades, the block-replay engine, recovery
// coordinator, tip-follower, and command surface together, exposes the
// HTTP surface, and handles graceful shutdown. Grounded on
// cmd/indexer/main.go's construct-everything-then-serve shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starknet-replay/orchestrator/internal/audit"
	"github.com/starknet-replay/orchestrator/internal/command"
	"github.com/starknet-replay/orchestrator/internal/engine"
	"github.com/starknet-replay/orchestrator/internal/events"
	"github.com/starknet-replay/orchestrator/internal/health"
	"github.com/starknet-replay/orchestrator/internal/history"
	"github.com/starknet-replay/orchestrator/internal/logging"
	"github.com/starknet-replay/orchestrator/internal/recovery"
	"github.com/starknet-replay/orchestrator/internal/rerr"
	"github.com/starknet-replay/orchestrator/internal/resume"
	"github.com/starknet-replay/orchestrator/internal/retry"
	"github.com/starknet-replay/orchestrator/internal/rpc"
	"github.com/starknet-replay/orchestrator/internal/startup"
	"github.com/starknet-replay/orchestrator/internal/tip"
	"github.com/starknet-replay/orchestrator/pkg/config"
	"github.com/starknet-replay/orchestrator/pkg/model"
)

const serviceName = "starknet-replay-orchestrator"

func main() {
	logger := logging.New(serviceName)
	logger.Info().Msg("starting replay orchestrator")

	env, err := config.LoadEnv(os.LookupEnv)
	if err != nil {
		logger.Fatal().Err(err).Msg("config-error")
	}

	tunables, err := config.Load("config.toml", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load tunables")
	}
	logging.SetLevel(&logger, tunables.LogLevel())

	if env.CleanSlate {
		os.Remove(env.StateFilePath)
		logger.Warn().Str("path", env.StateFilePath).Msg("clean slate requested, removed existing resume record")
	}

	executor := retry.NewExecutor()

	sourceTransport := rpc.NewJSONRPCClient(env.SourceRPCURL, nil)
	targetTransport := rpc.NewJSONRPCClient(env.TargetRPCURL, nil)
	adminTransport := rpc.NewJSONRPCClient(env.TargetAdminURL, nil)
	splitTarget := rpc.SplitTarget{Reads: targetTransport, Admin: adminTransport}

	dispatch := rpc.DefaultAdapters(adminTransport)

	sourceFacade := rpc.NewSource(sourceTransport, executor, retry.SourceBlockFetch(tunables.SourceBlockFetchMaxAttempts()), logger)
	targetFacade := rpc.NewTarget(splitTarget, dispatch, executor, rpc.Policies{
		TargetHashPoll:    retry.TargetHashPoll(tunables.TargetHashPollMaxAttempts()),
		HashMatch:         retry.HashMatch(tunables.HashMatchMaxAttempts()),
		ReceiptPollSerial: retry.ReceiptPollSerial(tunables.ReceiptPollSerialMaxAttempts()),
		ReceiptPollBatch:  retry.ReceiptPollBatch(),
		TransactionInject: retry.TransactionInject(tunables.InjectMaxAttempts()),
	}, logger)

	resumeStore := resume.New(env.StateFilePath)

	historyStore, err := history.Open(tunables.HistoryDBPath(env.StateFilePath + ".history.db"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}
	defer historyStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditSink, err := audit.Connect(ctx, tunables.AuditDatabaseURL(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect audit sink")
	}
	defer auditSink.Close()

	eventPublisher, err := events.Connect(tunables.NATSURL(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect event publisher")
	}
	defer eventPublisher.Close()

	healthMonitor := health.New(env.TargetAdminURL+"/health", tunables.HealthCheckTimeout(), tunables.RecoveryProbeCap(), tunables.RecoveryWaitCap())
	recoveryCoordinator := recovery.New(targetFacade, healthMonitor, logger)

	eng := engine.New(engine.Deps{
		Source:   sourceFacade,
		Target:   targetFacade,
		Resume:   resumeStore,
		Recovery: recoveryCoordinator,
		Executor: executor,
		Events:   eventPublisher,
		Audit:    auditSink,
		History:  historyStore,
		Policies: engine.Policies{
			HashMatch:        retry.HashMatch(tunables.HashMatchMaxAttempts()),
			ReceiptBatch:     retry.ReceiptPollBatch(),
			ReceiptBudget:    tunables.ReceiptValidationBudget(),
			AlignMaxAttempts: tunables.AlignMaxAttempts(),
			IdleSleep:        tunables.EngineIdleSleep(),
		},
		Logger: logger,
	})

	tipFollower := tip.New(sourceFacade, eng, tunables.TipFollowerInterval(),
		retry.Policy{Kind: retry.Exponential, Base: time.Second, MaxAttempts: tunables.TipFollowerMaxAttempts()},
		executor, logger)
	go tipFollower.Run(ctx)

	surface := command.New(eng, sourceFacade, historyStore, logger)

	if err := startup.Run(ctx, resumeStore, sourceFacade, targetFacade, surface, logger); err != nil {
		logger.Error().Err(err).Msg("startup recovery failed")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler(eng))
	mux.HandleFunc("/sync", syncHandler(surface))
	mux.HandleFunc("/sync/cancel", cancelHandler(surface))
	mux.HandleFunc("/sync/status", statusHandler(surface))

	server := &http.Server{Addr: ":" + env.Port, Handler: mux}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("shutdown signal received")

	cancel()
	resumeStore.SaveIdle()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}

var startTime = time.Now()

func healthHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"uptime":        time.Since(startTime).String(),
			"engineRunning": eng.IsRunning(),
		})
	}
}

type syncRequest struct {
	EndBlock json.RawMessage `json:"endBlock"`
}

func syncHandler(surface *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid-block", "message": "malformed request body"})
			return
		}

		var endBlock model.BlockPosition
		var isLatest bool

		var asString string
		if err := json.Unmarshal(req.EndBlock, &asString); err == nil {
			if asString != "latest" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid-block"})
				return
			}
			isLatest = true
		} else {
			var asNumber uint64
			if err := json.Unmarshal(req.EndBlock, &asNumber); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid-block"})
				return
			}
			endBlock = model.BlockPosition(asNumber)
		}

		result, err := surface.Start(r.Context(), endBlock, isLatest)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case isSyncInProgress(err):
				status = http.StatusConflict
			case isInvalidBlock(err):
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"processId":    "replay",
			"syncFrom":     result.SyncFrom,
			"syncTo":       result.SyncTo,
			"isContinuous": result.IsContinuous,
		})
	}
}

func cancelHandler(surface *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			CompleteCurrentBlock bool `json:"complete_current_block"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		pos, err := surface.Cancel(req.CompleteCurrentBlock)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"currentBlock": pos})
	}
}

func statusHandler(surface *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, surface.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isSyncInProgress(err error) bool { return hasCode(err, rerr.CodeSyncInProgress) }
func isInvalidBlock(err error) bool   { return hasCode(err, rerr.CodeInvalidBlock) }

func hasCode(err error, code rerr.Code) bool {
	var re *rerr.Error
	return errors.As(err, &re) && re.Code == code
}
