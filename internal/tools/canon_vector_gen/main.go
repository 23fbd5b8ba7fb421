// canon_vector_gen recomputes the expectations in a conformance vectors file
// from each vector's input segments. Review the diff before committing it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"xdao.co/capcanon/canon"
	"xdao.co/capcanon/canon/canontest"
	"xdao.co/capcanon/cidutil"
	"xdao.co/capcanon/wire"
)

func main() {
	in := flag.String("in", "testdata/conformance/canon/v1/vectors.json", "vectors file to read")
	out := flag.String("out", "", "write here instead of stdout")
	flag.Parse()

	m, err := canontest.Load(*in)
	if err != nil {
		panic(err)
	}
	h, err := cidutil.ParseHashAlg(m.Hash)
	if err != nil {
		panic(err)
	}
	for i := range m.Vectors {
		if err := regenerate(&m.Vectors[i], h); err != nil {
			panic(fmt.Sprintf("%s: %v", m.Vectors[i].Name, err))
		}
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		panic(err)
	}
	b = append(b, '\n')
	if *out == "" {
		_, _ = os.Stdout.Write(b)
		return
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		panic(err)
	}
}

func regenerate(v *canontest.Vector, h cidutil.HashAlg) error {
	v.CheckKind, v.Rule, v.Canonical, v.CID, v.EncodeKind = "", "", nil, "", ""

	msg, err := v.Message()
	if err != nil {
		return err
	}
	if err := canon.Check(msg); err != nil {
		var ce *canon.Error
		if !errors.As(err, &ce) {
			return err
		}
		v.CheckKind = string(ce.Kind)
		if ce.Kind == canon.KindNotCanonical {
			v.Rule = ce.RuleID
		}
	}

	out, err := canon.CanonicalizeMessage(msg)
	if err != nil {
		var ce *canon.Error
		if !errors.As(err, &ce) {
			return err
		}
		if ce.Kind != canon.KindNotCanonical {
			v.EncodeKind = string(ce.Kind)
		}
		return nil
	}
	seg := out.Segment(0)
	words := make([]uint64, seg.Len())
	for i := range words {
		words[i] = seg.Word(i)
	}
	v.Canonical = canontest.FormatWords(words)

	framed, err := wire.Marshal(out)
	if err != nil {
		return err
	}
	id, err := canon.CID(framed, h)
	if err != nil {
		return err
	}
	v.CID = id.String()
	return nil
}
