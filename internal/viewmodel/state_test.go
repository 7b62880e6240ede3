package viewmodel

import (
	"errors"
	"testing"

	"github.com/dovecote/pigeon/internal/deviceapi"
)

func TestState_BeginAndApply(t *testing.T) {
	s := State{Err: errors.New("old")}.Begin(ActionFetch)
	if !s.Busy() || s.Err != nil || s.LastAction != ActionFetch {
		t.Fatalf("Begin() = %+v", s)
	}

	s = s.Apply(Outcome{Action: ActionFetch, Settings: &deviceapi.Settings{DeviceID: "9"}})
	if s.Busy() || s.Status != StatusSucceeded {
		t.Errorf("Status = %v, want succeeded", s.Status)
	}
	if s.Settings.DeviceID != "9" {
		t.Errorf("Settings = %+v", s.Settings)
	}
}

func TestState_ApplyDoesNotAlias(t *testing.T) {
	before := State{WifiList: []deviceapi.WifiNetwork{{SSID: "A"}}}
	after := before.Apply(Outcome{Action: ActionScan, Networks: &deviceapi.NetworkList{WifiList: []deviceapi.WifiNetwork{{SSID: "B"}}}})

	if before.WifiList[0].SSID != "A" {
		t.Error("Apply modified the previous state")
	}
	if after.WifiList[0].SSID != "B" {
		t.Errorf("WifiList = %v", after.WifiList)
	}
}

func TestState_FailureKeepsPreviousResults(t *testing.T) {
	applied := &deviceapi.ApplyResult{StatusCode: 202}
	s := State{Applied: applied, Settings: &deviceapi.Settings{}}
	s = s.Apply(Outcome{Action: ActionApply, Err: deviceapi.NewHTTPError(500, "boom")})

	if s.Status != StatusFailed || !deviceapi.IsHTTPError(s.Err) {
		t.Errorf("state = %+v", s)
	}
	if s.Applied != applied || s.Settings == nil {
		t.Error("a failure must not clear earlier results")
	}
}

func TestFieldsFromSettings(t *testing.T) {
	f := FieldsFromSettings(&deviceapi.Settings{WifiSSID: "a", MQTTURL: "mqtt://b", APSSID: "ignored"})
	if f.WifiSSID != "a" || f.MQTTURL != "mqtt://b" {
		t.Errorf("FieldsFromSettings() = %+v", f)
	}
	if (FieldsFromSettings(nil) != Fields{}) {
		t.Error("FieldsFromSettings(nil) should be empty")
	}
}

func TestFieldsFromPayload(t *testing.T) {
	p := deviceapi.SettingsPayload{WifiSSID: "a", WifiPassword: "b", MQTTURL: "c", MQTTUsername: "d", MQTTPassword: "e"}
	if got := FieldsFromPayload(p).Payload(); got != p {
		t.Errorf("FieldsFromPayload(p).Payload() = %+v, want %+v", got, p)
	}
}

func TestStrings(t *testing.T) {
	if ActionScan.String() != "scan" || ActionApply.String() != "apply" || ActionFetch.String() != "fetch" || ActionNone.String() != "none" {
		t.Error("Action.String mismatch")
	}
	if StatusBusy.String() != "busy" || StatusFailed.String() != "failed" || StatusIdle.String() != "idle" || StatusSucceeded.String() != "succeeded" {
		t.Error("Status.String mismatch")
	}
}
