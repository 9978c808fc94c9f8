// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledger

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/internal/psbtutil"
	"github.com/luxfi/hwi-go/policy"
)

// Wallet policies need app 2.1.0 or later.
var minPolicyVersion = hwi.Version{Major: 2, Minor: 1, Patch: 0}

// Device is the hwi.HWI adapter for the Ledger Bitcoin app.
type Device struct {
	kind      hwi.DeviceKind
	net       *chaincfg.Params
	transport LedgerDevice
	session   *hwi.Session

	// Only touched inside session calls.
	version     *hwi.Version
	fingerprint *hwi.Fingerprint
	wallet      *registeredWallet
}

var _ hwi.HWI = (*Device)(nil)

// NewDevice binds an open transport to a handle.
func NewDevice(kind hwi.DeviceKind, transport LedgerDevice, ep hwi.Endpoint) *Device {
	d := &Device{
		kind:      kind,
		net:       ep.Net(),
		transport: transport,
		session:   hwi.NewSession(kind, transport, ep.Timeouts),
	}
	if n, ok := transport.(disconnectNotifier); ok {
		n.NotifyDisconnect(d.session.Disconnect)
	}
	return d
}

func (d *Device) DeviceKind() hwi.DeviceKind {
	return d.kind
}

// Session exposes the handle state, mainly for tests and diagnostics.
func (d *Device) Session() *hwi.Session {
	return d.session
}

func (d *Device) IsConnected(ctx context.Context) error {
	return d.session.Do(ctx, "is_connected", hwi.Query, func(ctx context.Context) error {
		_, err := d.appVersion(ctx)
		return err
	})
}

func (d *Device) GetVersion(ctx context.Context) (hwi.Version, error) {
	var v hwi.Version
	err := d.session.Do(ctx, "get_version", hwi.Query, func(ctx context.Context) error {
		var err error
		v, err = d.appVersion(ctx)
		return err
	})
	return v, err
}

// appVersion refreshes the cached version and checks the Bitcoin app is open.
func (d *Device) appVersion(ctx context.Context) (hwi.Version, error) {
	name, v, err := getAppAndVersion(ctx, d.transport)
	if err != nil {
		return v, err
	}
	if !bitcoinApps[name] {
		d.session.Logger().Debugw("bitcoin app not open", "app", name)
		return v, hwi.ErrDeviceNotFound
	}
	d.version = &v
	return v, nil
}

func (d *Device) masterFingerprint(ctx context.Context) (hwi.Fingerprint, error) {
	if d.fingerprint != nil {
		return *d.fingerprint, nil
	}
	fp, err := getMasterFingerprint(ctx, d.transport)
	if err != nil {
		return fp, err
	}
	d.fingerprint = &fp
	return fp, nil
}

func (d *Device) GetMasterFingerprint(ctx context.Context) (hwi.Fingerprint, error) {
	var fp hwi.Fingerprint
	err := d.session.Do(ctx, "get_master_fingerprint", hwi.Query, func(ctx context.Context) error {
		var err error
		fp, err = d.masterFingerprint(ctx)
		return err
	})
	return fp, err
}

func (d *Device) GetExtendedPubkey(ctx context.Context, path hwi.DerivationPath) (*hdkeychain.ExtendedKey, error) {
	var key *hdkeychain.ExtendedKey
	err := d.session.Do(ctx, "get_extended_pubkey", hwi.Query, func(ctx context.Context) error {
		if err := hwi.CheckXpubPath(path); err != nil {
			return err
		}
		xpub, err := getExtendedPubkey(ctx, d.transport, path, false)
		if err != nil {
			return err
		}
		key, err = hdkeychain.NewKeyFromString(xpub)
		if err != nil {
			return hwi.DeviceErrorf("device returned an invalid xpub: %v", err)
		}
		return nil
	})
	return key, err
}

func (d *Device) RegisterWallet(ctx context.Context, name, descriptor string) (*hwi.PolicyID, error) {
	var id *hwi.PolicyID
	err := d.session.Do(ctx, "register_wallet", hwi.Interactive, func(ctx context.Context) error {
		if err := hwi.CheckWalletName(name); err != nil {
			return err
		}
		desc, err := policy.Parse(descriptor)
		if err != nil {
			return hwi.PolicyParseError(err)
		}
		if err := d.requireVersion(ctx, minPolicyVersion); err != nil {
			return err
		}

		w := newWalletPolicy(name, desc)
		walletID, hmac, err := registerWallet(ctx, d.transport, w)
		if err != nil {
			return err
		}
		if walletID != w.id() {
			return hwi.DeviceError("device returned a different wallet id")
		}

		d.wallet = &registeredWallet{policy: w, hmac: hmac}
		pid := hwi.PolicyID(hmac)
		id = &pid
		d.session.Logger().Infow("wallet registered", "name", name, "id", pid.String())
		return nil
	})
	return id, err
}

func (d *Device) requireVersion(ctx context.Context, min hwi.Version) error {
	if d.version == nil {
		if _, err := d.appVersion(ctx); err != nil {
			return err
		}
	}
	if before(*d.version, min.Major, min.Minor, min.Patch) {
		return hwi.ErrUnsupportedVersion
	}
	return nil
}

func (d *Device) DisplayAddress(ctx context.Context, script hwi.AddressScript) error {
	return d.session.Do(ctx, "display_address", hwi.Interactive, func(ctx context.Context) error {
		var (
			w      walletPolicy
			hmac   [32]byte
			change bool
			index  uint32
		)
		switch s := script.(type) {
		case hwi.P2TR:
			if err := hwi.CheckBIP86(s.Path, true); err != nil {
				return err
			}
			fp, err := d.masterFingerprint(ctx)
			if err != nil {
				return err
			}
			account := s.Path[:3]
			xpub, err := getExtendedPubkey(ctx, d.transport, account, false)
			if err != nil {
				return err
			}
			w = singleSigPolicy(singleSigTemplates[s.Path[0]], fp, account, xpub)
			change, index = s.Path[3] == 1, s.Path[4]
		case hwi.Miniscript:
			if d.wallet == nil {
				return hwi.ErrMissingPolicy
			}
			if err := d.requireVersion(ctx, minPolicyVersion); err != nil {
				return err
			}
			w, hmac = d.wallet.policy, d.wallet.hmac
			change, index = s.Change, s.Index
		default:
			return hwi.ErrUnsupportedInput
		}

		addr, err := getWalletAddress(ctx, d.transport, w, hmac, change, index, true)
		if err != nil {
			return err
		}
		d.session.Logger().Infow("address displayed", "script", script.String(), "address", addr)
		return nil
	})
}

func (d *Device) SignTx(ctx context.Context, tx *psbt.Packet) error {
	return d.session.Do(ctx, "sign_tx", hwi.Interactive, func(ctx context.Context) error {
		fp, err := d.masterFingerprint(ctx)
		if err != nil {
			return err
		}
		required, err := psbtutil.Required(tx, fp)
		if err != nil {
			return err
		}
		if err := d.requireVersion(ctx, minPolicyVersion); err != nil {
			return err
		}

		var (
			w    walletPolicy
			hmac [32]byte
		)
		if d.wallet != nil {
			w, hmac = d.wallet.policy, d.wallet.hmac
		} else if w, err = d.singleSigFor(ctx, fp, &tx.Inputs[required[0]]); err != nil {
			return err
		}

		sigs, err := signPSBT(ctx, d.transport, w, hmac, tx)
		if err != nil {
			return err
		}
		return psbtutil.Apply(tx, required, sigs)
	})
}

// singleSigFor picks the unregistered policy matching the standard
// derivation of in, e.g. tr(@0/**) for m/86'/coin'/account'/change/index.
func (d *Device) singleSigFor(ctx context.Context, fp hwi.Fingerprint, in *psbt.PInput) (walletPolicy, error) {
	path := ownPath(in, fp)
	if len(path) != 5 {
		return walletPolicy{}, hwi.ErrUnsupportedInput
	}
	template, ok := singleSigTemplates[path[0]]
	if !ok {
		return walletPolicy{}, hwi.ErrUnsupportedInput
	}
	account := path[:3]
	xpub, err := getExtendedPubkey(ctx, d.transport, account, false)
	if err != nil {
		return walletPolicy{}, err
	}
	return singleSigPolicy(template, fp, account, xpub), nil
}

func (d *Device) Close() error {
	return d.session.Close()
}
