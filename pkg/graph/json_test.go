package graph

import (
	"testing"
)

func TestParseJSONKeepsOrder(t *testing.T) {
	doc := `{"z": 1, "a": [true, null, "x"], "m": {"n": 1.5e300}}`

	v, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	want := JSONObject{
		{Key: "z", Value: JSONNumber("1")},
		{Key: "a", Value: JSONArray{JSONBool(true), JSONNull{}, JSONString("x")}},
		{Key: "m", Value: JSONObject{{Key: "n", Value: JSONNumber("1.5e300")}}},
	}
	if !JSONEqual(v, want) {
		t.Errorf("ParseJSON() = %#v, want %#v", v, want)
	}

	out, err := MarshalJSONValue(v)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(out); got != `{"z":1,"a":[true,null,"x"],"m":{"n":1.5e300}}` {
		t.Errorf("MarshalJSONValue() = %s", got)
	}
}

func TestParseJSONErrors(t *testing.T) {
	for _, doc := range []string{"", "{", `{"a":}`, "[1,]", "1 2"} {
		if _, err := ParseJSON([]byte(doc)); err == nil {
			t.Errorf("ParseJSON(%q) succeeded", doc)
		}
	}
}

func TestJSONObjectGet(t *testing.T) {
	obj := JSONObject{{Key: "a", Value: JSONString("b")}}
	if v, ok := obj.Get("a"); !ok || v != JSONString("b") {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := obj.Get("missing"); ok {
		t.Error("Get(missing) found a value")
	}
}
