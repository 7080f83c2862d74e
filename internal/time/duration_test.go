package time

import (
	"encoding/json"
	"testing"
	"time"
)

// config-shaped fixture: the fields these durations actually live in
type sentinelTimes struct {
	ScanInterval Duration `json:"scan_interval"`
	Timeout      Duration `json:"timeout"`
}

func TestMarshalJSON(t *testing.T) {
	st := sentinelTimes{
		ScanInterval: Duration(5 * time.Minute),
		Timeout:      Duration(30 * time.Second),
	}

	data, err := json.Marshal(&st)
	if err != nil {
		t.Fatal(err)
	}

	exp := `{"scan_interval":"5m0s","timeout":"30s"}`
	if string(data) != exp {
		t.Fatalf("exp %s got %s", exp, data)
	}
}

func TestUnmarshalJSON(t *testing.T) {
	data := []byte(`{"scan_interval":"5m","timeout":"30s"}`)

	var st sentinelTimes
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatal(err)
	}

	if st.ScanInterval != Duration(5*time.Minute) {
		t.Fatalf("exp 5m got %s", st.ScanInterval)
	}
	if st.Timeout != Duration(30*time.Second) {
		t.Fatalf("exp 30s got %s", st.Timeout)
	}
}

func TestUnmarshalJSONRejectsGarbage(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"five minutes"`), &d); err == nil {
		t.Fatal("exp error on non-duration string")
	}
}

func TestStd(t *testing.T) {
	d := Duration(30 * time.Second)
	if d.Std() != 30*time.Second {
		t.Fatal("exp same value back")
	}
}

func TestString(t *testing.T) {
	d := Duration(5 * time.Minute)
	if d.String() != "5m0s" {
		t.Fatalf("exp 5m0s got %s", d.String())
	}
}
