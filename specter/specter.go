// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package specter drives Specter DIY devices over their USB serial line
// protocol, and the Specter simulator over TCP.
//
// The device stores registered wallets itself and issues no policy id, so
// RegisterWallet returns a nil id. The last registered descriptor is the
// active wallet of the handle for Miniscript address display.
package specter

import (
	"context"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/internal/logging"
	"github.com/luxfi/hwi-go/internal/psbtutil"
	"github.com/luxfi/hwi-go/policy"
)

var log = logging.Named("specter")

// Device is the hwi.HWI adapter for Specter.
type Device struct {
	kind    hwi.DeviceKind
	net     *chaincfg.Params
	conn    *conn
	session *hwi.Session

	fingerprint *hwi.Fingerprint
	wallet      *policy.Descriptor
}

var _ hwi.HWI = (*Device)(nil)

// NewDevice binds an open serial or TCP link to a handle.
func NewDevice(kind hwi.DeviceKind, link io.ReadWriteCloser, ep hwi.Endpoint) *Device {
	c := newConn(link)
	return &Device{
		kind:    kind,
		net:     ep.Net(),
		conn:    c,
		session: hwi.NewSession(kind, c, ep.Timeouts),
	}
}

func (d *Device) DeviceKind() hwi.DeviceKind {
	return d.kind
}

// Session exposes the handle state.
func (d *Device) Session() *hwi.Session {
	return d.session
}

func (d *Device) IsConnected(ctx context.Context) error {
	return d.session.Do(ctx, "is_connected", hwi.Query, func(ctx context.Context) error {
		_, err := d.masterFingerprint(ctx)
		return err
	})
}

// GetVersion is not part of the Specter protocol.
func (d *Device) GetVersion(ctx context.Context) (hwi.Version, error) {
	err := d.session.Do(ctx, "get_version", hwi.Query, func(context.Context) error {
		return hwi.ErrUnimplementedMethod
	})
	return hwi.Version{}, err
}

func (d *Device) masterFingerprint(ctx context.Context) (hwi.Fingerprint, error) {
	if d.fingerprint != nil {
		return *d.fingerprint, nil
	}
	res, err := d.conn.request(ctx, "fingerprint", false)
	if err != nil {
		return hwi.Fingerprint{}, err
	}
	fp, err := hwi.ParseFingerprint(res)
	if err != nil {
		return fp, hwi.DeviceErrorf("device returned an invalid fingerprint %q", res)
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
		res, err := d.conn.request(ctx, "xpub "+path.String(), false)
		if err != nil {
			return err
		}
		k, err := hdkeychain.NewKeyFromString(res)
		if err != nil || k.IsPrivate() {
			return hwi.DeviceErrorf("device returned an invalid xpub %q", res)
		}
		key = k
		return nil
	})
	return key, err
}

func (d *Device) RegisterWallet(ctx context.Context, name, descriptor string) (*hwi.PolicyID, error) {
	err := d.session.Do(ctx, "register_wallet", hwi.Interactive, func(ctx context.Context) error {
		if err := hwi.CheckWalletName(name); err != nil {
			return err
		}
		if strings.ContainsRune(name, '&') {
			return hwi.InvalidParam("name", "must not contain '&'")
		}
		desc, err := policy.Parse(descriptor)
		if err != nil {
			return hwi.PolicyParseError(err)
		}

		_, err = d.conn.request(ctx, "addwallet "+name+"&"+desc.Raw, false)
		if err != nil && !alreadyExists(err) {
			return err
		}
		d.wallet = desc
		d.session.Logger().Infow("wallet registered", "name", name)
		return nil
	})
	return nil, err
}

func alreadyExists(err error) bool {
	e := hwi.AsError(err)
	return e.Kind == hwi.Device && strings.Contains(strings.ToLower(e.Message), "already exists")
}

func (d *Device) DisplayAddress(ctx context.Context, script hwi.AddressScript) error {
	return d.session.Do(ctx, "display_address", hwi.Interactive, func(ctx context.Context) error {
		var cmd string
		switch s := script.(type) {
		case hwi.P2TR:
			if err := hwi.CheckBIP86(s.Path, true); err != nil {
				return err
			}
			cmd = "showaddr tr " + s.Path.String()
		case hwi.Miniscript:
			if d.wallet == nil {
				return hwi.ErrMissingPolicy
			}
			cmd = "showdescraddr " + d.wallet.AtIndex(s.Change, s.Index)
		default:
			return hwi.ErrUnsupportedInput
		}

		addr, err := d.conn.request(ctx, cmd, false)
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
		encoded, err := tx.B64Encode()
		if err != nil {
			return hwi.ErrUnsupportedInput
		}

		res, err := d.conn.request(ctx, "sign "+encoded, true)
		if err != nil {
			return err
		}
		signed, err := psbt.NewFromRawBytes(strings.NewReader(res), true)
		if err != nil {
			return hwi.DeviceErrorf("device returned an invalid psbt: %v", err)
		}
		sigs, err := psbtutil.Diff(tx, signed)
		if err != nil {
			return err
		}
		return psbtutil.Apply(tx, required, sigs)
	})
}

func (d *Device) Close() error {
	return d.session.Close()
}
