package solbc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
)

// ErrorAnalyzer provides methods to analyze Solana transaction errors
type ErrorAnalyzer struct {
	logger *zap.Logger
}

// NewErrorAnalyzer creates a new ErrorAnalyzer instance
func NewErrorAnalyzer(logger *zap.Logger) *ErrorAnalyzer {
	return &ErrorAnalyzer{
		logger: logger.Named("error-analyzer"),
	}
}

// Analysis is the structured view of a failed RPC call.
type Analysis struct {
	Code             int
	Message          string
	SimulationFailed bool
	BlockhashExpired bool
	// InstructionError is the raw "err" value of the simulation payload.
	InstructionError interface{}
	Logs             []string
	Anchor           *blockchain.AnchorError
}

// AnalyzeRPCError analyzes a jsonrpc.RPCError and extracts detailed information.
// ok is false when err is not an RPC error.
func (ea *ErrorAnalyzer) AnalyzeRPCError(err error) (Analysis, bool) {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return Analysis{Message: errString(err)}, false
	}

	result := Analysis{
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
	}
	if isBlockhashNotFound(rpcErr.Message) {
		result.BlockhashExpired = true
	}

	if strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		result.SimulationFailed = true
	}

	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return result, true
	}

	if logs, ok := dataMap["logs"].([]interface{}); ok {
		for _, entry := range logs {
			if s, ok := entry.(string); ok {
				result.Logs = append(result.Logs, s)
			}
		}
	}

	if instrErr, ok := dataMap["err"]; ok && instrErr != nil {
		result.InstructionError = instrErr
		if s, ok := instrErr.(string); ok && isBlockhashNotFound(s) {
			result.BlockhashExpired = true
		}
	}

	result.Anchor = ea.FindAnchorError(result.Logs)
	return result, true
}

// FindAnchorError looks for an Anchor error line in program logs.
func (ea *ErrorAnalyzer) FindAnchorError(logs []string) *blockchain.AnchorError {
	for _, line := range logs {
		if !strings.Contains(line, "AnchorError") {
			continue
		}
		anchorErr := parseAnchorErrorLog(line)
		ea.logger.Warn("Anchor error detected",
			zap.Int("code", anchorErr.Code),
			zap.String("name", anchorErr.Name),
			zap.String("message", anchorErr.Msg))
		return &anchorErr
	}
	return nil
}

// parseAnchorErrorLog parses an Anchor error log string
// Example: "Program log: AnchorError occurred. Error Code: InstructionFallbackNotFound. Error Number: 101. Error Message: Fallback functions are not supported."
func parseAnchorErrorLog(logStr string) blockchain.AnchorError {
	result := blockchain.AnchorError{}

	if parts := strings.SplitN(logStr, "Error Number:", 2); len(parts) > 1 {
		numParts := strings.Split(parts[1], ".")
		fmt.Sscanf(strings.TrimSpace(numParts[0]), "%d", &result.Code)
	}

	if parts := strings.SplitN(logStr, "Error Code:", 2); len(parts) > 1 {
		result.Name = strings.TrimSpace(strings.Split(parts[1], ".")[0])
	}

	if parts := strings.SplitN(logStr, "Error Message:", 2); len(parts) > 1 {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(parts[1]), ".")
	}

	return result
}

// FormatErrorAnalysis formats the error analysis for logging or display
func (ea *ErrorAnalyzer) FormatErrorAnalysis(analysis Analysis) string {
	jsonBytes, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error formatting analysis: %v", err)
	}
	return string(jsonBytes)
}

// ClassifySendError maps a sendRawTransaction failure to the dispatch error taxonomy.
func (ea *ErrorAnalyzer) ClassifySendError(err error) error {
	if err == nil {
		return nil
	}
	analysis, isRPC := ea.AnalyzeRPCError(err)
	switch {
	case analysis.BlockhashExpired:
		return &blockchain.SubmissionError{Err: fmt.Errorf("%w: %v", blockchain.ErrBlockhashExpired, err)}
	case isRPC && analysis.SimulationFailed && analysis.InstructionError != nil:
		ea.logger.Debug("Preflight simulation failed", zap.String("analysis", ea.FormatErrorAnalysis(analysis)))
		return &blockchain.OnChainExecutionError{
			Code:   analysis.InstructionError,
			Logs:   analysis.Logs,
			Anchor: analysis.Anchor,
		}
	default:
		return &blockchain.SubmissionError{Err: err}
	}
}

func isBlockhashNotFound(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "blockhash not found") || strings.Contains(s, "blockhashnotfound")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
