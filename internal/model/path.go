package model

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// PathOf returns the path of e from its root.
//
// A path is a "/"-separated list of segments, one per containment step.
// Named elements use "feature:name"; unnamed ones use "feature#index".
// The root itself has the empty path.
func PathOf(e *Element) string {
	var segs []string
	for cur := e; cur.parent != nil; cur = cur.parent {
		segs = append(segs, segment(cur))
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

func segment(e *Element) string {
	if e.name != "" {
		return string(e.feature) + ":" + e.name
	}
	return string(e.feature) + "#" + strconv.Itoa(e.parent.IndexOf(e.feature, e))
}

// Resolve finds the element at path below root.
func Resolve(root *Element, path string) (*Element, error) {
	if path == "" {
		return root, nil
	}

	cur := root
	for _, seg := range strings.Split(path, "/") {
		next, err := step(cur, seg)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %q", path)
		}
		cur = next
	}
	return cur, nil
}

func step(cur *Element, seg string) (*Element, error) {
	if f, name, ok := strings.Cut(seg, ":"); ok {
		if e := FindNamed(cur.children[Feature(f)], name); e != nil {
			return e, nil
		}
		return nil, errors.Newf("no element named %q in %s", name, f)
	}
	if f, idx, ok := strings.Cut(seg, "#"); ok {
		i, err := strconv.Atoi(idx)
		if err != nil {
			return nil, errors.Newf("bad index in segment %q", seg)
		}
		list := cur.children[Feature(f)]
		if i < 0 || i >= len(list) {
			return nil, errors.Newf("index %d out of range in %s", i, f)
		}
		e, ok := list[i].(*Element)
		if !ok {
			return nil, errors.Newf("%s#%d is not an element", f, i)
		}
		return e, nil
	}
	return nil, errors.Newf("malformed path segment %q", seg)
}
