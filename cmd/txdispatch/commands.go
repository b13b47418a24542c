package main

import (
	"fmt"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/txdispatch/internal/events"
	"github.com/rovshanmuradov/txdispatch/internal/export"
	"github.com/rovshanmuradov/txdispatch/internal/task"
	"github.com/rovshanmuradov/txdispatch/internal/types"
)

func newTransferCommand(a *app) *cobra.Command {
	var (
		to         string
		amount     string
		mode       string
		tier       string
		commitment string
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send SOL from the configured wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipient, err := solana.PublicKeyFromBase58(to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			sol, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			t, err := task.NewTransfer("transfer", recipient, sol)
			if err != nil {
				return err
			}
			if mode != "" {
				if t.FeeMode, err = types.ParseTransactionMode(mode); err != nil {
					return err
				}
			}
			if tier != "" {
				t.FeeTier = types.ParseFeeTier(tier)
			}
			t.Commitment = rpc.CommitmentType(commitment)

			stream := events.NewStream(8)
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.printer.Drain("", stream)
			}()

			res, err := a.runner.Transfer(cmd.Context(), t, stream)
			stream.Close()
			<-done

			a.printer.PrintResult("", res, err)
			return err
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in SOL")
	cmd.Flags().StringVar(&mode, "mode", "", "fee mode: priority_fee, jito_bundle or none")
	cmd.Flags().StringVar(&tier, "tier", "", "fee tier: low, medium, high, veryHigh")
	cmd.Flags().StringVar(&commitment, "commitment", "", "processed, confirmed or finalized")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newBatchCommand(a *app) *cobra.Command {
	var (
		file       string
		exportPath string
		onlyOK     bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Send every transfer listed in a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			transfers, err := task.NewManager(a.logger.Logger).LoadTransfers(file)
			if err != nil {
				return err
			}

			results := a.runner.RunBatch(cmd.Context(), transfers, func(t *task.Transfer) events.Sink {
				return a.printer.Sink(t.Name)
			})

			failed := 0
			for _, r := range results {
				a.printer.PrintResult(r.Transfer.Name, r.Result, r.Err)
				if r.Err != nil {
					failed++
				}
			}

			if exportPath != "" {
				format, err := export.ParseFormat(filepath.Ext(exportPath))
				if err != nil {
					return err
				}
				out, err := export.NewResultExporter(a.logger.Logger).ExportResults(results, export.ExportOptions{
					Format:      format,
					OnlySuccess: onlyOK,
					Path:        exportPath,
				})
				if err != nil {
					return fmt.Errorf("export report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", out)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d transfers failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "configs/transfers.yaml", "transfers file")
	cmd.Flags().StringVar(&exportPath, "export", "", "write a .csv or .json report of the batch")
	cmd.Flags().BoolVar(&onlyOK, "only-success", false, "report only transfers that succeeded")
	return cmd
}

func newBalanceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the SOL balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			bal, err := a.runner.Balance(cmd.Context(), owner)
			if err != nil {
				return err
			}
			a.printer.PrintBalance(bal)
			return nil
		},
	}
}
