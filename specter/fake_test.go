// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package specter

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	hwi "github.com/luxfi/hwi-go"
)

// fakeSpecter serves the line protocol on one end of a pipe.
type fakeSpecter struct {
	t      *testing.T
	master *hdkeychain.ExtendedKey
	conn   net.Conn

	mu       sync.Mutex
	commands []string
	wallets  map[string]string
	cancel   bool
	// signs lists the inputs the device signs; nil signs every input.
	signs  []int
	reply  map[string]string
	hangup bool
	noACK  bool
}

func startFake(t *testing.T) (*Device, *fakeSpecter) {
	t.Helper()
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x21}, 32), &chaincfg.TestNet3Params)
	require.NoError(t, err)

	client, server := net.Pipe()
	f := &fakeSpecter{t: t, master: master, conn: server, wallets: map[string]string{}, reply: map[string]string{}}
	go f.serve()

	dev := NewDevice(hwi.SpecterSimulator, client, hwi.Endpoint{Network: &chaincfg.TestNet3Params, Timeouts: hwi.DefaultTimeouts})
	t.Cleanup(func() {
		_ = dev.Close()
		_ = server.Close()
	})
	return dev, f
}

func (f *fakeSpecter) serve() {
	r := bufio.NewReader(f.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		hangup, noACK := f.hangup, f.noACK
		var res string
		if !hangup {
			res = f.handle(cmd)
		}
		f.mu.Unlock()

		if hangup {
			_ = f.conn.Close()
			return
		}
		out := "ACK\r\n" + res + "\r\n"
		if noACK {
			out = res + "\r\n"
		}
		if _, err := f.conn.Write([]byte(out)); err != nil {
			return
		}
	}
}

func (f *fakeSpecter) handle(cmd string) string {
	verb, arg, _ := strings.Cut(cmd, " ")
	if res, ok := f.reply[verb]; ok {
		return res
	}
	switch verb {
	case "fingerprint":
		return f.fingerprint().String()
	case "xpub":
		path, err := hwi.ParseDerivationPath(arg)
		if err != nil {
			return "error: bad path"
		}
		return f.xpub(path)
	case "addwallet":
		if f.cancel {
			return "error: User cancelled"
		}
		name, desc, _ := strings.Cut(arg, "&")
		if _, ok := f.wallets[name]; ok {
			return "error: Wallet already exists"
		}
		f.wallets[name] = desc
		return "success"
	case "showaddr", "showdescraddr":
		return "tb1qfakeaddress"
	case "sign":
		if f.cancel {
			return "error: User cancelled"
		}
		p, err := psbt.NewFromRawBytes(strings.NewReader(arg), true)
		if err != nil {
			return "error: invalid psbt"
		}
		inputs := f.signs
		if inputs == nil {
			for i := range p.Inputs {
				inputs = append(inputs, i)
			}
		}
		for _, i := range inputs {
			p.Inputs[i].TaprootKeySpendSig = bytes.Repeat([]byte{byte(i + 1)}, 64)
		}
		out, err := p.B64Encode()
		require.NoError(f.t, err)
		return out
	default:
		return "error: Unknown command"
	}
}

func (f *fakeSpecter) fingerprint() hwi.Fingerprint {
	pub, err := f.master.ECPubKey()
	require.NoError(f.t, err)
	var fp hwi.Fingerprint
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed())[:4])
	return fp
}

func (f *fakeSpecter) xpub(path hwi.DerivationPath) string {
	key := f.master
	for _, index := range path {
		var err error
		key, err = key.Derive(index)
		require.NoError(f.t, err)
	}
	pub, err := key.Neuter()
	require.NoError(f.t, err)
	return pub.String()
}

func (f *fakeSpecter) set(fn func(f *fakeSpecter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSpecter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}
