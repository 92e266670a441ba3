package transport

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(code int) error {
	return &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: code, Message: "test"}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"cannot message", restError(discordgo.ErrCodeCannotSendMessagesToThisUser), ErrCannotMessage},
		{"missing permissions", restError(discordgo.ErrCodeMissingPermissions), ErrMissingPermissions},
		{"missing access", restError(discordgo.ErrCodeMissingAccess), ErrMissingPermissions},
		{"unknown member", restError(discordgo.ErrCodeUnknownMember), ErrUnknownMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			var restErr *discordgo.RESTError
			if !errors.As(got, &restErr) {
				t.Fatalf("original error lost: %v", got)
			}
		})
	}

	other := errors.New("boom")
	if got := Classify(other); got != other {
		t.Fatalf("unrelated errors must pass through, got %v", got)
	}
	if got := Classify(&discordgo.RESTError{}); errors.Is(got, ErrCannotMessage) || errors.Is(got, ErrMissingPermissions) {
		t.Fatalf("errors without a body must not be classified")
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	var tr Transport = NewFake()
	fake := tr.(*Fake)
	fake.Hidden["u1|c1"] = true
	fake.Undeliverable["u2"] = true

	if ok, _ := tr.CanViewChannel("u1", "c1"); ok {
		t.Fatalf("expected hidden channel")
	}
	if ok, _ := tr.CanViewChannel("u1", "c2"); !ok {
		t.Fatalf("expected visible channel")
	}
	if err := tr.SendDirectEmbed("u2", &discordgo.MessageEmbed{}); !errors.Is(err, ErrCannotMessage) {
		t.Fatalf("expected ErrCannotMessage, got %v", err)
	}
	if err := tr.SendDirectEmbed("u1", &discordgo.MessageEmbed{}); err != nil || fake.DirectCount("u1") != 1 {
		t.Fatalf("direct message not recorded: %v", err)
	}
}
