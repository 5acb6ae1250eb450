package i18n

import (
	"reflect"
	"strings"
	"testing"
)

func TestEveryMessageTranslated(t *testing.T) {
	for name, msgs := range map[string]*Messages{"en": &messagesEN, "zh": &messagesZH} {
		v := reflect.ValueOf(msgs).Elem()
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).String() == "" {
				t.Errorf("%s: %s is empty", name, v.Type().Field(i).Name)
			}
		}
	}
}

func TestFormatVerbsMatch(t *testing.T) {
	en := reflect.ValueOf(&messagesEN).Elem()
	zh := reflect.ValueOf(&messagesZH).Elem()
	for i := 0; i < en.NumField(); i++ {
		if a, b := strings.Count(en.Field(i).String(), "%"), strings.Count(zh.Field(i).String(), "%"); a != b {
			t.Errorf("%s: en has %d verbs, zh has %d", en.Type().Field(i).Name, a, b)
		}
	}
}

func TestGetFollowsLanguage(t *testing.T) {
	defer SetLanguage(LangEN)

	SetLanguage(LangZH)
	if GetLanguage() != LangZH || Get("ShuttingDown") != messagesZH.ShuttingDown {
		t.Fatalf("expected zh message, got %q", Get("ShuttingDown"))
	}
	SetLanguage("fr")
	if Get("ShuttingDown") != messagesEN.ShuttingDown {
		t.Fatalf("unknown language should fall back to en")
	}
	if Get("NoSuchKey") != "NoSuchKey" {
		t.Fatalf("missing key should echo the key")
	}
}
