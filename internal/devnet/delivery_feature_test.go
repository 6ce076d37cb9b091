package devnet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/compose-network/hyperlane-eutxo"
	"github.com/compose-network/hyperlane-eutxo/builder"
	"github.com/compose-network/hyperlane-eutxo/codec"
	"github.com/compose-network/hyperlane-eutxo/recipient"
)

// deliveryContext keeps state through Gherkin steps for a single scenario.
type deliveryContext struct {
	threshold uint8
	mailbox   string
	verifier  string

	pair      *pair
	recipient *Recipient
	msg       codec.Message
	leaf      uint32
	md        codec.Metadata
	result    builder.Result
	err       error
}

func (c *deliveryContext) aDestinationTrusting(threshold, _ int) error {
	c.threshold = uint8(threshold)
	return nil
}

func (c *deliveryContext) theMailboxIsAccessedBy(mbx, ver string) error {
	c.mailbox, c.verifier = mbx, ver
	return nil
}

func (c *deliveryContext) aRecipient(ctx context.Context, kind string) error {
	if c.pair == nil {
		p, err := buildPair(ctx, c.threshold, func(o *Options) {
			o.Builder.Mailbox, _ = builder.MailboxAccessFor(c.mailbox)
			o.Builder.Verifier, _ = builder.VerifierAccessFor(c.verifier)
		})
		if err != nil {
			return err
		}
		c.pair = p
	}
	var err error
	switch RecipientKind(kind) {
	case KindGeneric:
		c.recipient, err = c.pair.dest.DeployGeneric(ctx)
	case KindDeferred:
		c.recipient, err = c.pair.dest.DeployDeferred(ctx)
	default:
		err = fmt.Errorf("no step deploys %q recipients", kind)
	}
	return err
}

func (c *deliveryContext) theOriginDispatches(ctx context.Context, body string) error {
	out, err := c.pair.origin.Dispatch(ctx, destinationDomain, c.recipient.Address(), []byte(body))
	if err != nil {
		return err
	}
	c.msg, c.leaf = out.Message, out.LeafIndex
	return nil
}

func (c *deliveryContext) validatorsSign(ctx context.Context, n int) error {
	if n > len(c.pair.signers) {
		return fmt.Errorf("only %d validators", len(c.pair.signers))
	}
	md, err := c.pair.origin.Metadata(ctx, c.leaf, AsSigners(c.pair.signers[:n]...))
	if err != nil {
		return err
	}
	c.md = md
	return nil
}

func (c *deliveryContext) theRelayerDelivers(ctx context.Context) error {
	c.result, c.err = c.pair.dest.Builder.Deliver(ctx, c.msg, c.md)
	return nil
}

func (c *deliveryContext) theDeliveryStateIs(want string) error {
	if got := c.result.State.String(); got != want {
		return fmt.Errorf("delivery state %s, want %s (error: %v)", got, want, c.err)
	}
	return nil
}

func (c *deliveryContext) theDeliveryErrorIs(want string) error {
	if c.err == nil || !strings.Contains(c.err.Error(), want) {
		return fmt.Errorf("delivery error %v, want %q", c.err, want)
	}
	return nil
}

func (c *deliveryContext) theRecipientHasReceived(ctx context.Context, n int) error {
	recs, err := c.pair.dest.Ledger.FindByAsset(ctx, c.recipient.State)
	if err != nil {
		return err
	}
	if len(recs) != 1 {
		return fmt.Errorf("%d records hold the recipient state", len(recs))
	}
	s, err := recipient.DecodeGenericState(recs[0].Output.Datum)
	if err != nil {
		return err
	}
	if s.MessagesReceived != uint64(n) {
		return fmt.Errorf("recipient received %d messages, want %d", s.MessagesReceived, n)
	}
	return nil
}

func (c *deliveryContext) theStoredMessageCanBeProcessedOnce(ctx context.Context) error {
	stored, _, err := c.pair.dest.Builder.ProcessStored(ctx, c.recipient.Hash, c.msg.ID())
	if err != nil {
		return err
	}
	if !stored.Matches(c.msg) {
		return errors.New("stored message differs from the dispatched one")
	}
	if _, _, err := c.pair.dest.Builder.ProcessStored(ctx, c.recipient.Hash, c.msg.ID()); !errors.Is(err, hyperlane.ErrRecordNotFound) {
		return fmt.Errorf("second processing returned %v", err)
	}
	return nil
}

// InitializeScenario wires the Gherkin steps to the step implementations.
func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &deliveryContext{}

	ctx.Step(`^a destination trusting (\d+) of (\d+) validators of the origin$`, state.aDestinationTrusting)
	ctx.Step(`^the mailbox is accessed by "([^"]*)" and the verifier by "([^"]*)"$`, state.theMailboxIsAccessedBy)
	ctx.Step(`^a "([^"]*)" recipient$`, state.aRecipient)
	ctx.Step(`^the origin dispatches "([^"]*)" to the recipient$`, state.theOriginDispatches)
	ctx.Step(`^(\d+) validators sign the checkpoint$`, state.validatorsSign)
	ctx.Step(`^the relayer delivers the message$`, state.theRelayerDelivers)
	ctx.Step(`^the delivery state is "([^"]*)"$`, state.theDeliveryStateIs)
	ctx.Step(`^the delivery error is "([^"]*)"$`, state.theDeliveryErrorIs)
	ctx.Step(`^the recipient has received (\d+) messages?$`, state.theRecipientHasReceived)
	ctx.Step(`^the stored message can be processed once$`, state.theStoredMessageCanBeProcessedOnce)
}

// TestMain integrates godog with `go test` to run features/delivery.feature.
func TestMain(m *testing.M) {
	status := godog.TestSuite{
		Name:                "delivery-feature",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format: "pretty",
			Paths:  []string{"features/delivery.feature"},
		},
	}.Run()

	if st := m.Run(); st > status {
		status = st
	}
	os.Exit(status)
}
