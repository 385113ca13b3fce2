package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Dispatcher performs the outward-directed calls of an execution. The
// settlement ledger guarantees batch atomicity; an implementation must apply
// either every call or none and return an error in the latter case.
type Dispatcher interface {
	Execute(ctx context.Context, calls []Call) error
}

// NopDispatcher accepts every call without side effects. Useful when the
// engine is run purely for authorization accounting.
type NopDispatcher struct{}

func (NopDispatcher) Execute(context.Context, []Call) error { return nil }

// Management function selectors. These are the selectors of the wallet's own
// management surface; the genesis whitelist registers them under the zero
// address so that policy changes pass the same whitelist discipline as fund
// movements.
const (
	SelAddWhitelistEntry    wallet.Selector = "0xeae04d1b"
	SelDeleteWhitelistEntry wallet.Selector = "0xd3975216"
	SelAddOwner             wallet.Selector = "0x878df11b"
	SelRemoveOwner          wallet.Selector = "0x4cde890b"
	SelSwapOwner            wallet.Selector = "0xe318b52b"
	SelChangeThresholds     wallet.Selector = "0xdac7ed25"
	SelSetProposer          wallet.Selector = "0x1fb4a228"
	SelSetDelay             wallet.Selector = "0xe177246e"
)

// managementSelectors is the dispatch set for self-calls.
var managementSelectors = map[wallet.Selector]bool{
	SelAddWhitelistEntry:    true,
	SelDeleteWhitelistEntry: true,
	SelAddOwner:             true,
	SelRemoveOwner:          true,
	SelSwapOwner:            true,
	SelChangeThresholds:     true,
	SelSetProposer:          true,
	SelSetDelay:             true,
}

// Argument shapes for management calls. Call data is the 4-byte selector
// followed by the UTF-8 JSON encoding of the argument struct.

type AddOwnerArgs struct {
	Owner      wallet.Address    `json:"owner"`
	Thresholds wallet.Thresholds `json:"thresholds"`
}

type RemoveOwnerArgs struct {
	PrevOwner  wallet.Address    `json:"prev_owner"`
	Owner      wallet.Address    `json:"owner"`
	Thresholds wallet.Thresholds `json:"thresholds"`
}

type SwapOwnerArgs struct {
	PrevOwner wallet.Address `json:"prev_owner"`
	OldOwner  wallet.Address `json:"old_owner"`
	NewOwner  wallet.Address `json:"new_owner"`
}

type ChangeThresholdsArgs struct {
	Thresholds wallet.Thresholds `json:"thresholds"`
}

type SetProposerArgs struct {
	Proposer wallet.Address `json:"proposer"`
}

type SetDelayArgs struct {
	DelaySeconds uint64 `json:"delay_seconds"`
}

type WhitelistEntryArgs struct {
	Entry wallet.WhitelistEntry `json:"entry"`
}

type DeleteWhitelistEntryArgs struct {
	Target   wallet.Address  `json:"target"`
	Selector wallet.Selector `json:"selector"`
}

// EncodeManagementCall packs selector and JSON arguments into call data.
// Clients use this to build management proposals whose execution ids they
// can predict.
func EncodeManagementCall(sel wallet.Selector, args any) (string, error) {
	if !managementSelectors[sel] {
		return "", fmt.Errorf("unknown management selector %s", sel)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode management args: %w", err)
	}
	return string(sel) + hex.EncodeToString(body), nil
}

// decodeManagementArgs unpacks the JSON argument bytes after the selector.
func decodeManagementArgs(data string, into any) error {
	d := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(d) < 8 {
		return fmt.Errorf("call data carries no selector")
	}
	raw, err := hex.DecodeString(d[8:])
	if err != nil {
		return fmt.Errorf("malformed management call data: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("malformed management args: %w", err)
	}
	return nil
}

// applyManagement dispatches one management self-call against the given
// policy. The engine calls this on a clone so a failing batch rolls back.
func applyManagement(p *wallet.Policy, sel wallet.Selector, data string) error {
	switch sel {
	case SelAddOwner:
		var a AddOwnerArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.AddOwnerWithThreshold(a.Owner, a.Thresholds)
	case SelRemoveOwner:
		var a RemoveOwnerArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.RemoveOwnerWithThreshold(a.PrevOwner, a.Owner, a.Thresholds)
	case SelSwapOwner:
		var a SwapOwnerArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.SwapOwner(a.PrevOwner, a.OldOwner, a.NewOwner)
	case SelChangeThresholds:
		var a ChangeThresholdsArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.ChangeThresholds(a.Thresholds)
	case SelSetProposer:
		var a SetProposerArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.SetProposer(a.Proposer)
	case SelSetDelay:
		var a SetDelayArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.SetDelay(a.DelaySeconds)
	case SelAddWhitelistEntry:
		var a WhitelistEntryArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.AddWhitelistEntry(a.Entry)
	case SelDeleteWhitelistEntry:
		var a DeleteWhitelistEntryArgs
		if err := decodeManagementArgs(data, &a); err != nil {
			return err
		}
		return p.DeleteWhitelistEntry(a.Target, a.Selector)
	}
	return fmt.Errorf("unknown management selector %s", sel)
}
