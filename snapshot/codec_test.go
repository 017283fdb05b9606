package snapshot_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/bennyboer/eventsourcing/snapshot"
	"github.com/google/go-cmp/cmp"
)

type identity struct {
	id      string
	version uint64
}

type Address struct {
	Street string
	City   string `json:"city"`
}

type Account struct {
	identity
	Owner    string
	Miles    int
	Tier     uint8
	Ratio    float64
	Active   bool
	Opened   time.Time
	Home     Address
	Work     *Address
	Tags     []string
	Legs     map[string]int
	ByYear   map[int]string
	Raw      []byte
	Note     string `snapshot:"remark"`
	Secret   string `snapshot:"-"`
	internal int
}

func fullAccount() Account {
	return Account{
		identity: identity{id: "123", version: 4},
		Owner:    "ada",
		Miles:    12000,
		Tier:     2,
		Ratio:    0.75,
		Active:   true,
		Opened:   time.Date(2020, 3, 4, 5, 6, 7, 8, time.UTC),
		Home:     Address{Street: "Main 1", City: "Oslo"},
		Work:     &Address{Street: "Dock 3", City: "Bergen"},
		Tags:     []string{"gold", "lounge"},
		Legs:     map[string]int{"OSL-LHR": 2},
		ByYear:   map[int]string{2019: "silver"},
		Raw:      []byte{1, 2, 3},
		Note:     "vip",
		Secret:   "hidden",
	}
}

func TestRoundTrip(t *testing.T) {
	c := snapshot.NewCodec()
	in := fullAccount()
	data, err := c.Marshal(&in)
	if err != nil {
		t.Fatal(err)
	}
	var out Account
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	want := in
	want.identity = identity{}
	want.Secret = ""
	if diff := cmp.Diff(want, out, cmp.AllowUnexported(Account{}, identity{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeFieldNames(t *testing.T) {
	c := snapshot.NewCodec()
	in := fullAccount()
	r, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Owner", "remark", "Home", "Tags"} {
		if _, ok := r[name]; !ok {
			t.Fatalf("expected field %q in record %v", name, r)
		}
	}
	for _, name := range []string{"Secret", "Note", "internal", "id", "version", "identity"} {
		if _, ok := r[name]; ok {
			t.Fatalf("field %q should not be in the record", name)
		}
	}
	home, ok := r["Home"].(snapshot.Record)
	if !ok {
		t.Fatalf("expected nested record got %T", r["Home"])
	}
	if home["city"] != "Oslo" {
		t.Fatalf("expected json tag name to be used, got %v", home)
	}
	if r["Opened"] != "2020-03-04T05:06:07.000000008Z" {
		t.Fatalf("unexpected time encoding %v", r["Opened"])
	}
}

type Contact struct {
	Email string
	Phone string
}

type hidden struct {
	Code string
}

type Linked struct {
	*Linked
	Label string
}

type Member struct {
	*Contact
	*hidden
	Linked
	Name string
}

func TestEmbeddedPointers(t *testing.T) {
	c := snapshot.NewCodec()

	t.Run("flattens set pointer", func(t *testing.T) {
		r, err := c.Encode(Member{Contact: &Contact{Email: "ada@example.com"}, hidden: &hidden{Code: "x"}, Name: "ada"})
		if err != nil {
			t.Fatal(err)
		}
		if r["Email"] != "ada@example.com" || r["Name"] != "ada" {
			t.Fatalf("expected promoted fields in record %v", r)
		}
		if _, ok := r["Code"]; ok {
			t.Fatalf("field of unexported embedded pointer should not be in record %v", r)
		}
	})
	t.Run("leaves out nil pointer", func(t *testing.T) {
		r, err := c.Encode(Member{Name: "bob"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := r["Email"]; ok {
			t.Fatalf("nil embedded pointer should add no fields, got %v", r)
		}
		if r["Label"] != "" {
			t.Fatalf("expected label of the embedded struct got %v", r)
		}
	})
	t.Run("allocates on decode", func(t *testing.T) {
		var out Member
		if err := c.Decode(snapshot.Record{"Phone": "555", "Name": "ada", "Label": "l"}, &out); err != nil {
			t.Fatal(err)
		}
		if out.Contact == nil || out.Phone != "555" || out.Name != "ada" || out.Label != "l" {
			t.Fatalf("unexpected member %+v", out)
		}
		if out.hidden != nil || out.Linked.Linked != nil {
			t.Fatalf("pointers without record fields should stay nil, got %+v", out)
		}
	})
	t.Run("does not allocate without fields", func(t *testing.T) {
		var out Member
		if err := c.Decode(snapshot.Record{"Name": "ada"}, &out); err != nil {
			t.Fatal(err)
		}
		if out.Contact != nil {
			t.Fatalf("expected nil contact got %+v", out.Contact)
		}
	})
}

func TestDecodeMissingFieldsKeepDefaults(t *testing.T) {
	c := snapshot.NewCodec()
	out := Account{Miles: 5}
	if err := c.Decode(snapshot.Record{"Owner": "bob"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Owner != "bob" {
		t.Fatalf("expected owner bob got %q", out.Owner)
	}
	if out.Miles != 5 {
		t.Fatalf("missing field should keep its value, got %d", out.Miles)
	}
	if out.Work != nil || out.Tags != nil {
		t.Fatal("missing fields should stay nil")
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	c := snapshot.NewCodec()
	data := []byte(`{"Owner":"bob","Removed":{"a":1},"Legacy":[1,2,3]}`)
	var out Account
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Owner != "bob" {
		t.Fatalf("expected owner bob got %q", out.Owner)
	}
}

func TestDecodeCoercesMismatchedTypes(t *testing.T) {
	c := snapshot.NewCodec()
	tests := []struct {
		name  string
		data  string
		check func(a Account) bool
	}{
		{"string to int", `{"Miles":"42"}`, func(a Account) bool { return a.Miles == 42 }},
		{"float string to int", `{"Miles":"42.0"}`, func(a Account) bool { return a.Miles == 42 }},
		{"unparsable to int", `{"Miles":"many"}`, func(a Account) bool { return a.Miles == 0 }},
		{"fraction to int", `{"Miles":1.5}`, func(a Account) bool { return a.Miles == 0 }},
		{"number to string", `{"Owner":7}`, func(a Account) bool { return a.Owner == "7" }},
		{"bool to string", `{"Owner":true}`, func(a Account) bool { return a.Owner == "true" }},
		{"string to bool", `{"Active":"true"}`, func(a Account) bool { return a.Active }},
		{"number to bool", `{"Active":3}`, func(a Account) bool { return !a.Active }},
		{"overflow", `{"Tier":300}`, func(a Account) bool { return a.Tier == 0 }},
		{"negative to uint", `{"Tier":-1}`, func(a Account) bool { return a.Tier == 0 }},
		{"string to float", `{"Ratio":"0.5"}`, func(a Account) bool { return a.Ratio == 0.5 }},
		{"bad time", `{"Opened":"yesterday"}`, func(a Account) bool { return a.Opened.IsZero() }},
		{"scalar to struct", `{"Home":"Main 1"}`, func(a Account) bool { return a.Home == Address{} }},
		{"scalar to slice", `{"Tags":"gold"}`, func(a Account) bool { return a.Tags == nil }},
		{"mixed slice", `{"Tags":["gold",1,false]}`, func(a Account) bool {
			return cmp.Equal(a.Tags, []string{"gold", "1", "false"})
		}},
		{"bad map key", `{"ByYear":{"2019":"silver","last":"gold"}}`, func(a Account) bool {
			return cmp.Equal(a.ByYear, map[int]string{2019: "silver"})
		}},
		{"null pointer", `{"Work":null}`, func(a Account) bool { return a.Work == nil }},
		{"null string", `{"Owner":null}`, func(a Account) bool { return a.Owner == "" }},
		{"bad bytes", `{"Raw":"%%%"}`, func(a Account) bool { return a.Raw == nil }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out Account
			if err := c.Unmarshal([]byte(test.data), &out); err != nil {
				t.Fatal(err)
			}
			if !test.check(out) {
				t.Fatalf("unexpected result %+v", out)
			}
		})
	}
}

func TestDecodeRecordFromOlderStruct(t *testing.T) {
	type accountV1 struct {
		Owner string
		Miles string
		Level string
	}
	c := snapshot.NewCodec()
	data, err := c.Marshal(accountV1{Owner: "ada", Miles: "300", Level: "gold"})
	if err != nil {
		t.Fatal(err)
	}
	var out Account
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Owner != "ada" || out.Miles != 300 {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestSpecialFloats(t *testing.T) {
	type gauge struct{ Value float64 }
	c := snapshot.NewCodec()
	inf := math.Inf(1)
	data, err := c.Marshal(gauge{Value: inf})
	if err != nil {
		t.Fatal(err)
	}
	var out gauge
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Value != inf {
		t.Fatalf("expected +Inf got %v", out.Value)
	}
}

func TestNotStruct(t *testing.T) {
	c := snapshot.NewCodec()
	if _, err := c.Encode(42); err != snapshot.ErrNotStruct {
		t.Fatalf("expected ErrNotStruct got %v", err)
	}
	var a Account
	if err := c.Decode(snapshot.Record{}, a); err != snapshot.ErrNotStruct {
		t.Fatalf("expected ErrNotStruct got %v", err)
	}
	if err := c.Unmarshal([]byte("not json"), &a); err == nil {
		t.Fatal("expected error on corrupt data")
	}
}

func TestRecordIsPlainJSON(t *testing.T) {
	c := snapshot.NewCodec()
	in := fullAccount()
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	if generic["Owner"] != "ada" {
		t.Fatalf("unexpected json %s", data)
	}
}
