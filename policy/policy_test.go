// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	hwi "github.com/luxfi/hwi-go"
)

const (
	tpubA = "tpubD6NzVbkrYhZ4XgiXtGrdW5XDAPFCL9h7we1vwNCpn8tGbBcgfVYjXyhWo4E1xkh56hjod1RhGjxbaTLV3X4FyWuejifB9jusQ46QzG87VKp"
	tpubB = "tpubD6NzVbkrYhZ4XJDrzRvuxHEyQaPd1mwwdDofEJwekX18tAdsqeKfxss79AJzg1431FybXg5rfpTrJF4iAhyR7RubberdzEQXiRmXGADH2eA"

	keyA = "[f5acc2fd/48'/1'/0'/2']" + tpubA
	keyB = "[42b3c1a0/48'/1'/0'/2']" + tpubB

	multisig = "wsh(multi(2," + keyA + "/**," + keyB + "/**))"
)

func TestChecksum(t *testing.T) {
	sum, ok := Checksum("raw(deadbeef)")
	require.True(t, ok)
	require.Equal(t, "89f8spxm", sum)

	sum, ok = Checksum(multisig)
	require.True(t, ok)
	require.Equal(t, "9sdzmdd9", sum)

	_, ok = Checksum("wsh(é)")
	require.False(t, ok)
}

func TestParseMultisig(t *testing.T) {
	d, err := Parse(multisig + "#9sdzmdd9")
	require.NoError(t, err)
	require.Equal(t, multisig, d.Raw)
	require.Equal(t, "wsh", d.Script)
	require.Equal(t, "wsh(multi(2,@0/**,@1/**))", d.Template)
	require.Len(t, d.Keys, 2)

	require.True(t, d.Keys[0].HasOrigin)
	require.Equal(t, "f5acc2fd", d.Keys[0].Fingerprint.String())
	require.Equal(t, "m/48'/1'/0'/2'", d.Keys[0].Path.String())
	require.Equal(t, tpubA, d.Keys[0].XPub)
	require.Equal(t, keyA, d.Keys[0].String())
	require.Equal(t, keyB, d.Keys[1].String())
}

func TestParseReusedKey(t *testing.T) {
	desc := "wsh(or_d(pk(" + keyA + "/<0;1>/*),and_v(v:pkh(" + keyB + "/<0;1>/*),older(65535))))"
	d, err := Parse(desc)
	require.NoError(t, err)
	require.Equal(t, "wsh(or_d(pk(@0/<0;1>/*),and_v(v:pkh(@1/<0;1>/*),older(65535))))", d.Template)

	desc = "wsh(or_d(pk(" + keyA + "/<0;1>/*),and_v(v:pkh(" + keyA + "/<2;3>/*),older(10))))"
	d, err = Parse(desc)
	require.NoError(t, err)
	require.Len(t, d.Keys, 1)
	require.Equal(t, "wsh(or_d(pk(@0/<0;1>/*),and_v(v:pkh(@0/<2;3>/*),older(10))))", d.Template)
}

func TestParseTaprootTree(t *testing.T) {
	desc := "tr(" + keyA + "/**,{pk(" + keyB + "/**),and_v(v:pk(" + tpubA + "/**),sha256(" + strings.Repeat("ab", 32) + "))})"
	d, err := Parse(desc)
	require.NoError(t, err)
	require.Equal(t, "tr", d.Script)
	require.Len(t, d.Keys, 3)
	require.False(t, d.Keys[2].HasOrigin)
	require.Equal(t, "tr(@0/**,{pk(@1/**),and_v(v:pk(@2/**),sha256("+strings.Repeat("ab", 32)+"))})", d.Template)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"bad checksum":      multisig + "#qqqqqqqq",
		"unknown top level": "raw(deadbeef)",
		"unbalanced":        "wsh(multi(2," + keyA + "/**)",
		"trailing":          multisig + ")",
		"nested tr":         "wsh(tr(" + keyA + "/**))",
		"bad fragment":      "wsh(Multi(1," + keyA + "/**))",
		"bad key":           "wsh(pk(tpubNOTAKEY/**))",
		"bad fingerprint":   "wsh(pk([f5acc2/48']" + tpubA + "/**))",
		"bad origin path":   "wsh(pk([f5acc2fd/x]" + tpubA + "/**))",
		"bad suffix":        "wsh(pk(" + keyA + "/1'/*))",
		"same multipath":    "wsh(pk(" + keyA + "/<0;0>/*))",
		"tree outside tr":   "wsh({pk(" + keyA + "),pk(" + keyB + ")})",
		"unterminated":      "wsh(pk([f5acc2fd" + tpubA + "))",
	}
	for name, desc := range cases {
		_, err := Parse(desc)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), name)
	}
}

func TestParseDepthLimit(t *testing.T) {
	desc := "wsh(" + strings.Repeat("v:and_v(", maxDepth+1) + "pk(" + keyA + ")" + strings.Repeat(",1)", maxDepth+1) + ")"
	_, err := Parse(desc)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Msg, "nesting")
}

func TestParseErrorWrapsIntoTaxonomy(t *testing.T) {
	_, err := Parse("raw(deadbeef)")
	wrapped := hwi.PolicyParseError(err)
	require.Equal(t, hwi.ParsingPolicy, hwi.KindOf(wrapped))
	require.Contains(t, wrapped.Error(), "unsupported top level script")
}

func TestAtIndex(t *testing.T) {
	d, err := Parse("wsh(or_d(pk([f5acc2fd/48'/1'/0'/2']" + tpubA + "/**),pk([42b3c1a0/48'/1'/0'/2']" + tpubB + "/<2;3>/*)))")
	require.NoError(t, err)

	got := d.AtIndex(true, 5)
	require.Contains(t, got, tpubA+"/1/5")
	require.Contains(t, got, tpubB+"/3/5")
	require.NotContains(t, got, "*")

	// The result carries a valid checksum.
	resolved, err := Parse(got)
	require.NoError(t, err)
	require.Equal(t, d.Keys, resolved.Keys)

	require.Contains(t, d.AtIndex(false, 0), tpubB+"/2/0")
}
