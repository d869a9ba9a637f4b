package xpriso

import (
	"slices"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/common/types"
)

var (
	alpha = types.MustFromExternalForm("mem:alpha")
	beta  = types.MustFromExternalForm("mem:beta")
)

func objectID(t testing.TB, base types.NetMeshBaseIdentifier, local string) types.NetMeshObjectIdentifier {
	t.Helper()
	id, err := types.NewObjectIDFactory(base, nil).FromLocal(local)
	require.NoError(t, err)
	return id
}

func fullMessage(t testing.TB) *Message {
	a := objectID(t, alpha, "a")
	b := objectID(t, alpha, "b")
	c := objectID(t, beta, "c")
	return &Message{
		Sender:          alpha,
		Receiver:        beta,
		RequestID:       7,
		ResponseID:      3,
		Session:         0x5eed,
		ResponseSession: 0xacc,
		ConveyedMeshObjects: []types.ExternalizedNetMeshObject{
			{
				Identifier:            a,
				EntityTypes:           []types.EntityTypeID{"t/One", "t/Two"},
				TimeCreated:           1,
				TimeUpdated:           2,
				TimeRead:              3,
				TimeExpires:           types.NeverExpires,
				Properties:            []types.PropertyEntry{{Type: "t/P", Value: types.StringValue("v")}},
				Proxies:               []types.NetMeshBaseIdentifier{beta},
				ProxyTowardsHomeIndex: types.HereIndex,
				ProxyTowardsLockIndex: 0,
			},
			{Identifier: b, TimeExpires: types.NeverExpires, ProxyTowardsHomeIndex: types.HereIndex, ProxyTowardsLockIndex: types.HereIndex},
		},
		DeletedObjects: []DeleteChange{{Identifier: b, TimeUpdated: 10}, {Identifier: c, TimeUpdated: 11}},
		PropertyChanges: []PropertyChange{
			{Identifier: a, Type: "t/P", Value: types.IntegerValue(5), TimeUpdated: 12},
			{Identifier: a, Type: "t/Q", Removed: true, TimeUpdated: 12},
		},
		TypeAdditions:       []TypeChange{{Identifier: a, Types: []types.EntityTypeID{"t/X", "t/Y"}, TimeUpdated: 13}},
		TypeRemovals:        []TypeChange{{Identifier: b, Types: []types.EntityTypeID{"t/Z"}, TimeUpdated: 13}},
		NeighborAdditions:   []NeighborChange{{Identifier: a, Neighbor: b, TimeUpdated: 14}, {Identifier: b, Neighbor: a, TimeUpdated: 14}},
		NeighborRemovals:    []NeighborChange{{Identifier: a, Neighbor: c, TimeUpdated: 14}},
		RoleAdditions:       []RoleChange{{Identifier: a, Neighbor: b, RoleTypes: []types.RoleTypeID{"r/S", "r/T"}, TimeUpdated: 15}},
		RoleRemovals:        []RoleChange{{Identifier: b, Neighbor: a, RoleTypes: []types.RoleTypeID{"r/D"}, TimeUpdated: 15}},
		EquivalentAdditions: []EquivalentsChange{{Identifier: a, Equivalent: c}},
		EquivalentRemovals:  []EquivalentsChange{{Identifier: b, Equivalent: c}},

		PushLockObjects:                []types.NetMeshObjectIdentifier{a, b},
		RequestedLockObjects:           []types.NetMeshObjectIdentifier{c},
		ReclaimedLockObjects:           []types.NetMeshObjectIdentifier{a},
		PushHomeReplicas:               []types.NetMeshObjectIdentifier{b},
		RequestedHomeReplicas:          []types.NetMeshObjectIdentifier{c},
		RequestedFirstTimeObjects:      []types.NetMeshObjectIdentifier{a, b, c},
		RequestedCanceledObjects:       []types.NetMeshObjectIdentifier{b},
		RequestedResynchronizeReplicas: []types.NetMeshObjectIdentifier{c, a},
	}
}

func shuffled(m *Message) *Message {
	c := *m
	c.ConveyedMeshObjects = reversed(m.ConveyedMeshObjects)
	c.DeletedObjects = reversed(m.DeletedObjects)
	c.PropertyChanges = reversed(m.PropertyChanges)
	c.NeighborAdditions = reversed(m.NeighborAdditions)
	c.PushLockObjects = reversed(m.PushLockObjects)
	c.RequestedFirstTimeObjects = reversed(m.RequestedFirstTimeObjects)
	c.RequestedResynchronizeReplicas = reversed(m.RequestedResynchronizeReplicas)
	c.TypeAdditions = []TypeChange{{
		Identifier:  m.TypeAdditions[0].Identifier,
		Types:       reversed(m.TypeAdditions[0].Types),
		TimeUpdated: m.TypeAdditions[0].TimeUpdated,
	}}
	c.RoleAdditions = []RoleChange{{
		Identifier:  m.RoleAdditions[0].Identifier,
		Neighbor:    m.RoleAdditions[0].Neighbor,
		RoleTypes:   reversed(m.RoleAdditions[0].RoleTypes),
		TimeUpdated: m.RoleAdditions[0].TimeUpdated,
	}}
	conveyed := c.ConveyedMeshObjects[1].Clone()
	conveyed.EntityTypes = reversed(conveyed.EntityTypes)
	c.ConveyedMeshObjects[1] = *conveyed
	return &c
}

func reversed[T any](s []T) []T {
	c := slices.Clone(s)
	slices.Reverse(c)
	return c
}

func TestCheckReportsAllProblems(t *testing.T) {
	m := &Message{RequestID: -1}
	err := m.Check()
	require.ErrorIs(t, err, ErrInvalidMessage)

	var invalid *InvalidMessageError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Problems, 3)
	require.Contains(t, err.Error(), "sender is empty")
	require.Contains(t, err.Error(), "receiver is empty")
	require.Contains(t, err.Error(), "request id -1 is negative")
}

func TestCheck(t *testing.T) {
	require.NoError(t, fullMessage(t).Check())
	require.NoError(t, (&Message{Sender: alpha, Receiver: beta, ResponseID: 4}).Check())

	for _, tc := range []struct {
		desc    string
		mutate  func(*Message)
		problem string
	}{
		{"negative response", func(m *Message) { m.ResponseID = -2 }, "response id -2 is negative"},
		{"same endpoints", func(m *Message) { m.Receiver = m.Sender }, "sender and receiver are both"},
		{"unnumbered operations", func(m *Message) { m.RequestID = 0 }, "without request id"},
		{"empty conveyed id", func(m *Message) {
			m.ConveyedMeshObjects[1].Identifier = types.NetMeshObjectIdentifier{}
		}, "conveyed[1] has empty identifier"},
		{"empty property type", func(m *Message) { m.PropertyChanges[0].Type = "" }, "property changes[0] has empty property type"},
		{"empty neighbor", func(m *Message) {
			m.NeighborAdditions[1].Neighbor = types.NetMeshObjectIdentifier{}
		}, "neighbor additions[1] has empty identifier"},
		{"empty lock id", func(m *Message) {
			m.PushLockObjects = append(m.PushLockObjects, types.NetMeshObjectIdentifier{})
		}, "push lock[2] has empty identifier"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			m := fullMessage(t)
			tc.mutate(m)
			err := m.Check()
			require.ErrorIs(t, err, ErrInvalidMessage)
			require.Contains(t, err.Error(), tc.problem)
		})
	}
}

func TestEqualIgnoresOrder(t *testing.T) {
	m := fullMessage(t)
	s := shuffled(m)
	require.False(t, slices.Equal(m.PushLockObjects, s.PushLockObjects))
	require.True(t, m.Equal(s))
	require.True(t, s.Equal(m))
	require.Equal(t, m.Hash(), s.Hash())
}

func TestEqualCountsMultiplicity(t *testing.T) {
	a := objectID(t, alpha, "a")
	b := objectID(t, alpha, "b")
	m := &Message{Sender: alpha, Receiver: beta, RequestID: 1, PushLockObjects: []types.NetMeshObjectIdentifier{a, a, b}}
	o := &Message{Sender: alpha, Receiver: beta, RequestID: 1, PushLockObjects: []types.NetMeshObjectIdentifier{a, b, b}}
	require.False(t, m.Equal(o))
	o.PushLockObjects = []types.NetMeshObjectIdentifier{b, a, a}
	require.True(t, m.Equal(o))
}

func TestEqualDetectsEveryField(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		mutate func(*Message)
	}{
		{"sender", func(m *Message) { m.Sender = types.MustFromExternalForm("mem:gamma") }},
		{"request", func(m *Message) { m.RequestID++ }},
		{"response", func(m *Message) { m.ResponseID++ }},
		{"session", func(m *Message) { m.Session++ }},
		{"response session", func(m *Message) { m.ResponseSession++ }},
		{"cease", func(m *Message) { m.CeaseCommunications = true }},
		{"conveyed content", func(m *Message) { m.ConveyedMeshObjects[0].TimeUpdated++ }},
		{"deleted", func(m *Message) { m.DeletedObjects = m.DeletedObjects[:1] }},
		{"property value", func(m *Message) { m.PropertyChanges[0].Value = types.IntegerValue(6) }},
		{"type removals", func(m *Message) { m.TypeRemovals[0].Types = nil }},
		{"neighbor removals", func(m *Message) { m.NeighborRemovals = nil }},
		{"role types", func(m *Message) { m.RoleRemovals[0].RoleTypes = []types.RoleTypeID{"r/E"} }},
		{"equivalents", func(m *Message) { m.EquivalentAdditions[0].Equivalent = m.EquivalentAdditions[0].Identifier }},
		{"home", func(m *Message) { m.PushHomeReplicas = nil }},
		{"resync", func(m *Message) { m.RequestedResynchronizeReplicas = m.RequestedResynchronizeReplicas[1:] }},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			m := fullMessage(t)
			o := fullMessage(t)
			tc.mutate(o)
			require.False(t, m.Equal(o))
		})
	}
}

func TestHashIgnoresContent(t *testing.T) {
	m := fullMessage(t)
	o := fullMessage(t)
	o.PushLockObjects = nil
	o.CeaseCommunications = true
	require.False(t, m.Equal(o))
	require.Equal(t, m.Hash(), o.Hash())

	o.ResponseID++
	require.NotEqual(t, m.Hash(), o.Hash())

	swapped := fullMessage(t)
	swapped.Sender, swapped.Receiver = swapped.Receiver, swapped.Sender
	require.NotEqual(t, m.Hash(), swapped.Hash())
}

func TestWireRoundTrip(t *testing.T) {
	m := fullMessage(t)
	data, err := Encode(m)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.True(t, m.Equal(decoded))
	require.NoError(t, decoded.Check())

	empty := &Message{Sender: alpha, Receiver: beta, ResponseID: 9}
	data, err = Encode(empty)
	require.NoError(t, err)
	decoded, err = Decode(data)
	require.NoError(t, err)
	require.True(t, decoded.IsEmpty())
	require.True(t, empty.Equal(decoded))
}

func TestDecodeMalformed(t *testing.T) {
	data, err := Encode(fullMessage(t))
	require.NoError(t, err)
	_, err = Decode(data[:len(data)-3])
	require.ErrorIs(t, err, ErrMalformedMessage)
	_, err = Decode([]byte(strings.Repeat("\xff", 16)))
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodeRandomBytes(t *testing.T) {
	valid, err := Encode(fullMessage(t))
	require.NoError(t, err)

	f := fuzz.NewWithSeed(1001).NilChance(0)
	for range 1000 {
		var data []byte
		f.Fuzz(&data)
		if _, err := Decode(data); err != nil {
			require.ErrorIs(t, err, ErrMalformedMessage)
		}

		mutated := slices.Clone(valid)
		var pos uint16
		var b byte
		f.Fuzz(&pos)
		f.Fuzz(&b)
		mutated[int(pos)%len(mutated)] = b
		if _, err := Decode(mutated); err != nil {
			require.ErrorIs(t, err, ErrMalformedMessage)
		}
	}
}

func TestMergeAndOperations(t *testing.T) {
	m := &Message{Sender: alpha, Receiver: beta}
	require.True(t, m.IsEmpty())
	full := fullMessage(t)
	m.Merge(full)
	require.Equal(t, full.Operations(), m.Operations())
	require.False(t, m.IsEmpty())

	cease := &Message{Sender: alpha, Receiver: beta, CeaseCommunications: true}
	require.Zero(t, cease.Operations())
	require.False(t, cease.IsEmpty())
}
