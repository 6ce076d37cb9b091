package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/builder"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/config"
	"github.com/compose-network/hyperlane-eutxo/internal/devnet"
	"github.com/compose-network/hyperlane-eutxo/ledger"
	"github.com/compose-network/hyperlane-eutxo/multisig"
)

type env struct {
	cfgPath string
	cfg     config.Config
	logger  zerolog.Logger
	store   *ledger.BoltStore
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "xmailbox-relayer",
		Short:         "Delivers cross-chain messages to an eUTXO mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfig()
			if e.cfgPath != "" {
				var err error
				if cfg, err = config.Load(e.cfgPath); err != nil {
					return err
				}
			}
			logger, err := cfg.Log.Logger(os.Stderr)
			if err != nil {
				return err
			}
			e.cfg, e.logger = cfg, logger
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.store == nil {
				return nil
			}
			return e.store.Close()
		},
	}
	root.PersistentFlags().StringVar(&e.cfgPath, "config", "", "path of the YAML config file")
	root.AddCommand(
		e.devnetInitCmd(),
		e.dispatchCmd(),
		e.deliverCmd(),
		e.statusCmd(),
		e.processStoredCmd(),
	)
	return root
}

// open restores the deployment from the manifest on the configured store.
func (e *env) open() (*devnet.Devnet, []*devnet.Recipient, error) {
	m, err := devnet.LoadManifest(e.cfg.Deployment)
	if err != nil {
		return nil, nil, err
	}
	opts, err := e.devnetOptions()
	if err != nil {
		return nil, nil, err
	}
	return devnet.Restore(opts, m, e.logger)
}

func (e *env) devnetOptions() (devnet.Options, error) {
	if e.cfg.Wallet.Seed == "" {
		return devnet.Options{}, fmt.Errorf("wallet.seed is required: %w", config.ErrInvalidConfig)
	}
	key, err := e.cfg.Wallet.Key()
	if err != nil {
		return devnet.Options{}, err
	}
	if e.store == nil {
		if e.store, err = ledger.OpenBoltStore(e.cfg.Ledger.Path); err != nil {
			return devnet.Options{}, err
		}
	}
	bopts, err := e.cfg.BuilderOptions()
	if err != nil {
		return devnet.Options{}, err
	}
	opts := devnet.DefaultOptions(0)
	opts.Store = e.store
	opts.Key = key
	opts.Params = e.cfg.Ledger.Params
	opts.Builder = bopts
	return opts, nil
}

func (e *env) devnetInitCmd() *cobra.Command {
	var (
		domain     uint32
		origin     uint32
		validators []string
		threshold  uint8
		recipients []string
	)
	cmd := &cobra.Command{
		Use:   "devnet-init",
		Short: "Deploy a mailbox, verifier and recipients on the configured ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := e.devnetOptions()
			if err != nil {
				return err
			}
			opts.Domain = hyperlane.Domain(domain)
			if len(validators) > 0 {
				set := multisig.ValidatorSet{Threshold: threshold}
				for _, v := range validators {
					if !common.IsHexAddress(v) {
						return fmt.Errorf("validator %q is not an address", v)
					}
					set.Validators = append(set.Validators, common.HexToAddress(v))
				}
				opts.Validators = map[hyperlane.Domain]multisig.ValidatorSet{hyperlane.Domain(origin): set}
			}
			n, err := devnet.New(cmd.Context(), opts, e.logger)
			if err != nil {
				return err
			}
			for _, kind := range recipients {
				var r *devnet.Recipient
				switch devnet.RecipientKind(kind) {
				case devnet.KindGeneric:
					r, err = n.DeployGeneric(cmd.Context())
				case devnet.KindDeferred:
					r, err = n.DeployDeferred(cmd.Context())
				default:
					return fmt.Errorf("devnet-init deploys generic and deferred recipients, not %q", kind)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s recipient %s\n", kind, r.Address())
			}
			return n.Manifest.Save(e.cfg.Deployment)
		},
	}
	cmd.Flags().Uint32Var(&domain, "domain", 2003, "local domain")
	cmd.Flags().Uint32Var(&origin, "origin", 43113, "origin domain the validators sign for")
	cmd.Flags().StringSliceVar(&validators, "validator", nil, "validator address (repeatable)")
	cmd.Flags().Uint8Var(&threshold, "threshold", 1, "signatures required")
	cmd.Flags().StringSliceVar(&recipients, "recipient", []string{string(devnet.KindGeneric)}, "recipient kinds to deploy")
	return cmd
}

func (e *env) dispatchCmd() *cobra.Command {
	var (
		destination uint32
		recipient   string
		body        string
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch a message from the operator wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			to, err := decodeBytes32(recipient)
			if err != nil {
				return err
			}
			n, _, err := e.open()
			if err != nil {
				return err
			}
			out, err := n.Builder.Dispatch(cmd.Context(), hyperlane.Domain(destination), to, []byte(body))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "message %s nonce %d tx %s\n%s\n",
				out.Message.ID(), out.Message.Nonce, out.TxID, hex.EncodeToString(out.Message.Encode()))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&destination, "destination", 0, "destination domain")
	cmd.Flags().StringVar(&recipient, "recipient", "", "32-byte recipient address (hex)")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	return cmd
}

func (e *env) deliverCmd() *cobra.Command {
	var messages, metadata []string
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Deliver messages with their proof metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(messages) != len(metadata) {
				return fmt.Errorf("%d messages, %d metadata", len(messages), len(metadata))
			}
			n, _, err := e.open()
			if err != nil {
				return err
			}
			jobs := make([]*builder.Job, len(messages))
			for i := range messages {
				msg, md, err := decodeDelivery(messages[i], metadata[i])
				if err != nil {
					return err
				}
				jobs[i] = builder.NewJob(msg, md, e.logger)
			}
			if err := builder.RunAll(cmd.Context(), n.Builder, jobs, e.cfg.Concurrency); err != nil {
				return err
			}
			failed := 0
			for _, j := range jobs {
				res, err := j.Result()
				line := fmt.Sprintf("%s %s attempts=%d", j.MessageID(), res.State, res.Attempts)
				if err != nil && res.State != hyperlane.DeliveryStateAlreadyDelivered {
					failed++
					line += " error=" + err.Error()
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			for _, r := range n.Builder.StuckReports() {
				fmt.Fprintf(cmd.OutOrStdout(), "stuck report %s for %s\n", r.ID, r.MessageID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deliveries failed", failed, len(jobs))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&messages, "message", nil, "encoded message (hex, repeatable)")
	cmd.Flags().StringArrayVar(&metadata, "metadata", nil, "encoded metadata (hex, repeatable, same order)")
	return cmd
}

func (e *env) statusCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a message was processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mid, err := decodeBytes32(id)
			if err != nil {
				return err
			}
			n, _, err := e.open()
			if err != nil {
				return err
			}
			rec, ok, err := n.Builder.Guard().Marker(cmd.Context(), mid)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mid, hyperlane.DeliveryStatePending)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s marker at %s\n", mid, hyperlane.DeliveryStateDelivered, rec.Ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "message-id", "", "message id (hex)")
	return cmd
}

func (e *env) processStoredCmd() *cobra.Command {
	var recipient, id string
	cmd := &cobra.Command{
		Use:   "process-stored",
		Short: "Consume a message held by a deferred recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := decodeBytes32(recipient)
			if err != nil {
				return err
			}
			h, ok := addr.ScriptHash()
			if !ok {
				return fmt.Errorf("recipient %s is not a script address", addr)
			}
			mid, err := decodeBytes32(id)
			if err != nil {
				return err
			}
			n, _, err := e.open()
			if err != nil {
				return err
			}
			stored, tx, err := n.Builder.ProcessStored(cmd.Context(), h, mid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %s from %d nonce %d tx %s\n", stored.MessageID, stored.Origin, stored.Nonce, tx)
			return nil
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "32-byte recipient address (hex)")
	cmd.Flags().StringVar(&id, "message-id", "", "message id (hex)")
	return cmd
}

func decodeBytes32(s string) (hyperlane.Bytes32, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return hyperlane.Bytes32{}, err
	}
	if len(b) != 32 {
		return hyperlane.Bytes32{}, fmt.Errorf("%q is %d bytes, want 32", s, len(b))
	}
	return hyperlane.BytesToBytes32(b), nil
}

func decodeDelivery(message, metadata string) (codec.Message, codec.Metadata, error) {
	mb, err := hex.DecodeString(strings.TrimPrefix(message, "0x"))
	if err != nil {
		return codec.Message{}, codec.Metadata{}, err
	}
	msg, err := codec.DecodeMessage(mb)
	if err != nil {
		return codec.Message{}, codec.Metadata{}, err
	}
	db, err := hex.DecodeString(strings.TrimPrefix(metadata, "0x"))
	if err != nil {
		return codec.Message{}, codec.Metadata{}, err
	}
	md, err := codec.DecodeMetadata(db)
	if err != nil {
		return codec.Message{}, codec.Metadata{}, err
	}
	return msg, md, nil
}
