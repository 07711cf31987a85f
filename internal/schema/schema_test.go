package schema

import (
	"testing"

	"github.com/shfed/creditcore/internal/domain"
)

func TestIsEventKey(t *testing.T) {
	known := []string{
		domain.KeyAttendanceLogged,
		domain.KeyGradePosted,
		domain.KeyMicrocertEarned,
		domain.KeyAssignmentSubmitted,
		domain.KeySocialAction,
		domain.KeyPaymentPosted,
		domain.KeyDisputeResolved,
		domain.KeyDerogAdded,
	}
	for _, k := range known {
		if !IsEventKey(k) {
			t.Errorf("expected %q to be a known key", k)
		}
	}

	unknown := []string{"", "edu.attendance", "EDU.ATTENDANCE.LOGGED", "misc.thing"}
	for _, k := range unknown {
		if IsEventKey(k) {
			t.Errorf("expected %q to be rejected", k)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(domain.Event{Key: domain.KeyGradePosted, TS: 1}) {
		t.Error("valid event rejected")
	}
	if IsValid(domain.Event{Key: "nope", TS: 1}) {
		t.Error("unknown key accepted")
	}
	if IsValid(domain.Event{Key: domain.KeyGradePosted, TS: -5}) {
		t.Error("negative timestamp accepted")
	}
}

func TestKeysCoversKnownSet(t *testing.T) {
	keys := Keys()
	if len(keys) != 8 {
		t.Fatalf("expected 8 known keys, got %d", len(keys))
	}
	for _, k := range keys {
		if !IsEventKey(k) {
			t.Errorf("Keys returned %q which IsEventKey rejects", k)
		}
	}
}
