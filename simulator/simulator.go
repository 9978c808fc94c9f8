// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package simulator is an in-process signing device. It holds a BIP32 seed,
// registers wallet policies, renders addresses onto a fake screen and signs
// taproot key path and P2WPKH inputs, with every user confirmation answered
// by a callback.
//
// Miniscript display renders the real address for single key policies and
// for multi or sortedmulti under wsh or sh(wsh). Other policies show the
// wallet name with the change branch and index instead.
//
// Registrations live in memory unless Config.StoragePath names a bbolt file.
// The active wallet used for Miniscript display is per handle either way.
package simulator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/hkdf"

	hwi "github.com/luxfi/hwi-go"
	"github.com/luxfi/hwi-go/internal/logging"
	"github.com/luxfi/hwi-go/policy"
)

var log = logging.Named("simulator")

const secretInfo = "hwi simulator policy hmac"

// Device is a simulated hwi.HWI.
type Device struct {
	cfg     Config
	net     *chaincfg.Params
	session *hwi.Session
	link    *link
	store   *store

	master      *hdkeychain.ExtendedKey
	fingerprint hwi.Fingerprint
	secret      []byte

	mu       sync.Mutex
	screen   []string
	policies map[hwi.PolicyID]Registration
	active   *Registration
}

var _ hwi.HWI = (*Device)(nil)

// New powers on a simulated device.
func New(cfg Config) (*Device, error) {
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	if cfg.Confirm == nil {
		cfg.Confirm = ApproveAll
	}

	d := &Device{
		cfg:      cfg,
		net:      cfg.Network,
		link:     &link{latency: cfg.Latency},
		policies: map[hwi.PolicyID]Registration{},
	}

	if len(cfg.Seed) > 0 {
		master, err := hdkeychain.NewMaster(cfg.Seed, cfg.Network)
		if err != nil {
			return nil, hwi.InvalidParam("seed", err.Error())
		}
		pub, err := master.ECPubKey()
		if err != nil {
			return nil, err
		}
		d.master = master
		copy(d.fingerprint[:], btcutil.Hash160(pub.SerializeCompressed())[:4])

		d.secret = make([]byte, 32)
		kdf := hkdf.New(sha256.New, cfg.Seed, nil, []byte(secretInfo))
		if _, err := io.ReadFull(kdf, d.secret); err != nil {
			return nil, fmt.Errorf("derive device secret: %w", err)
		}
	}

	if cfg.StoragePath != "" {
		s, err := openStore(cfg.StoragePath, d.fingerprint)
		if err != nil {
			return nil, err
		}
		d.store = s
	}

	d.session = hwi.NewSession(cfg.Kind, d.link, cfg.Timeouts)
	return d, nil
}

func (d *Device) DeviceKind() hwi.DeviceKind {
	return d.cfg.Kind
}

// Session exposes the handle state.
func (d *Device) Session() *hwi.Session {
	return d.session
}

// Unplug simulates the link going away.
func (d *Device) Unplug() {
	d.link.unplug()
	d.session.Disconnect()
}

// IOCalls counts round trips attempted on the link.
func (d *Device) IOCalls() int {
	return int(d.link.calls.Load())
}

// Screen returns everything the device has displayed, oldest first.
func (d *Device) Screen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.screen...)
}

func (d *Device) show(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = append(d.screen, line)
}

// Policies lists the registrations this device approved, including those
// persisted by earlier handles sharing the storage file.
func (d *Device) Policies() ([]Registration, error) {
	if d.store != nil {
		return d.store.list()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Registration, 0, len(d.policies))
	for _, r := range d.policies {
		out = append(out, r)
	}
	return out, nil
}

func (d *Device) requireSeed() error {
	if d.master == nil {
		return hwi.ErrUnsupportedInput
	}
	return nil
}

func (d *Device) IsConnected(ctx context.Context) error {
	return d.session.Do(ctx, "is_connected", hwi.Query, d.link.roundTrip)
}

func (d *Device) GetVersion(ctx context.Context) (hwi.Version, error) {
	err := d.session.Do(ctx, "get_version", hwi.Query, d.link.roundTrip)
	if err != nil {
		return hwi.Version{}, err
	}
	return d.cfg.Version, nil
}

func (d *Device) GetMasterFingerprint(ctx context.Context) (hwi.Fingerprint, error) {
	err := d.session.Do(ctx, "get_master_fingerprint", hwi.Query, func(ctx context.Context) error {
		if err := d.link.roundTrip(ctx); err != nil {
			return err
		}
		return d.requireSeed()
	})
	if err != nil {
		return hwi.Fingerprint{}, err
	}
	return d.fingerprint, nil
}

func (d *Device) derive(path hwi.DerivationPath) (*hdkeychain.ExtendedKey, error) {
	key := d.master
	for _, index := range path {
		var err error
		if key, err = key.Derive(index); err != nil {
			return nil, hwi.DeviceErrorf("derive %s: %v", path, err)
		}
	}
	return key, nil
}

func (d *Device) GetExtendedPubkey(ctx context.Context, path hwi.DerivationPath) (*hdkeychain.ExtendedKey, error) {
	var xpub *hdkeychain.ExtendedKey
	err := d.session.Do(ctx, "get_extended_pubkey", hwi.Query, func(ctx context.Context) error {
		if err := hwi.CheckXpubPath(path); err != nil {
			return err
		}
		if err := d.link.roundTrip(ctx); err != nil {
			return err
		}
		if err := d.requireSeed(); err != nil {
			return err
		}
		key, err := d.derive(path)
		if err != nil {
			return err
		}
		xpub, err = key.Neuter()
		return err
	})
	return xpub, err
}

// policyID authenticates the (name, descriptor) pair with the device secret.
func (d *Device) policyID(name, descriptor string) hwi.PolicyID {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(Registration{Name: name, Descriptor: descriptor}.encode())
	var id hwi.PolicyID
	copy(id[:], mac.Sum(nil))
	return id
}

// ownsKey reports whether one of the policy keys derives from this seed.
func (d *Device) ownsKey(desc *policy.Descriptor) bool {
	for _, k := range desc.Keys {
		if !k.HasOrigin || k.Fingerprint != d.fingerprint {
			continue
		}
		key, err := d.derive(k.Path)
		if err != nil {
			continue
		}
		pub, err := key.Neuter()
		if err != nil {
			continue
		}
		if pub.String() == k.XPub {
			return true
		}
	}
	return false
}

func (d *Device) confirm(kind PromptKind, text string) bool {
	ok := d.cfg.Confirm(Prompt{Kind: kind, Text: text})
	d.session.Logger().Debugw("prompt answered", "prompt", kind.String(), "approved", ok)
	return ok
}

func (d *Device) RegisterWallet(ctx context.Context, name, descriptor string) (*hwi.PolicyID, error) {
	var out *hwi.PolicyID
	err := d.session.Do(ctx, "register_wallet", hwi.Interactive, func(ctx context.Context) error {
		if err := hwi.CheckWalletName(name); err != nil {
			return err
		}
		desc, err := policy.Parse(descriptor)
		if err != nil {
			return hwi.PolicyParseError(err)
		}
		if !d.cfg.PolicySupport {
			return hwi.ErrUnsupportedVersion
		}
		if err := d.link.roundTrip(ctx); err != nil {
			return err
		}
		if err := d.requireSeed(); err != nil {
			return err
		}
		if !d.ownsKey(desc) {
			return hwi.ErrUnsupportedInput
		}
		if !d.confirm(PromptRegister, name+": "+desc.Raw) {
			return hwi.DeviceError("registration rejected by the user")
		}

		reg := Registration{ID: d.policyID(name, desc.Raw), Name: name, Descriptor: desc.Raw}
		if d.store != nil {
			if err := d.store.put(reg); err != nil {
				return hwi.DeviceErrorf("persist policy: %v", err)
			}
		}
		d.mu.Lock()
		d.policies[reg.ID] = reg
		d.active = &reg
		d.mu.Unlock()

		d.session.Logger().Infow("wallet registered", "name", name, "id", reg.ID.String())
		if d.cfg.PolicyIDs {
			id := reg.ID
			out = &id
		}
		return nil
	})
	return out, err
}

// taprootAddress is the BIP86 address of the key at path.
func (d *Device) taprootAddress(path hwi.DerivationPath) (string, error) {
	key, err := d.derive(path)
	if err != nil {
		return "", err
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return "", hwi.DeviceErrorf("derive %s: %v", path, err)
	}
	output := txscript.ComputeTaprootKeyNoScript(pub)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(output), d.net)
	if err != nil {
		return "", hwi.DeviceErrorf("encode address: %v", err)
	}
	return addr.EncodeAddress(), nil
}

func (d *Device) DisplayAddress(ctx context.Context, script hwi.AddressScript) error {
	return d.session.Do(ctx, "display_address", hwi.Interactive, func(ctx context.Context) error {
		var text string
		switch s := script.(type) {
		case hwi.P2TR:
			if err := hwi.CheckBIP86(s.Path, true); err != nil {
				return err
			}
			if err := d.link.roundTrip(ctx); err != nil {
				return err
			}
			if err := d.requireSeed(); err != nil {
				return err
			}
			addr, err := d.taprootAddress(s.Path)
			if err != nil {
				return err
			}
			text = addr
		case hwi.Miniscript:
			d.mu.Lock()
			active := d.active
			d.mu.Unlock()
			if active == nil {
				return hwi.ErrMissingPolicy
			}
			if err := d.link.roundTrip(ctx); err != nil {
				return err
			}
			desc, err := policy.Parse(active.Descriptor)
			if err != nil {
				return hwi.PolicyParseError(err)
			}
			addr, ok := policyAddress(desc, s.Change, s.Index, d.net)
			if !ok {
				change := 0
				if s.Change {
					change = 1
				}
				addr = fmt.Sprintf("%s %d/%d", active.Name, change, s.Index)
			}
			text = addr
		default:
			return hwi.ErrUnsupportedInput
		}

		// Displaying is not an approval; the user only reads the screen.
		d.show(text)
		return nil
	})
}

func (d *Device) SignTx(ctx context.Context, tx *psbt.Packet) error {
	return d.session.Do(ctx, "sign_tx", hwi.Interactive, func(ctx context.Context) error {
		if err := d.requireSeed(); err != nil {
			return err
		}
		return d.signTx(ctx, tx)
	})
}

// Close drops the handle and the storage file.
func (d *Device) Close() error {
	err := d.session.Close()
	if serr := d.store.Close(); err == nil {
		err = serr
	}
	return err
}
