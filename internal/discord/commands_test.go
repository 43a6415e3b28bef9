package discord

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content  string
		wantOK   bool
		wantName string
		wantArgs string
	}{
		{"!startstory Once upon a time.", true, "startstory", "Once upon a time."},
		{"!choose 2", true, "choose", "2"},
		{"!story", true, "story", ""},
		{"!PRAISE on", true, "praise", "on"},
		{"  !choose 1  ", true, "choose", "1"},
		{"!choose   3  ", true, "choose", "3"},
		{"just chatting", false, "", ""},
		{"", false, "", ""},
		{"!", false, "", ""},
		{"! leading space", false, "", ""},
		{"not!acommand", false, "", ""},
	}

	for _, tt := range tests {
		cmd, ok := parseCommand("!", tt.content)
		if ok != tt.wantOK {
			t.Errorf("parseCommand(%q) ok = %v, want %v", tt.content, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if cmd.Name != tt.wantName || cmd.Args != tt.wantArgs {
			t.Errorf("parseCommand(%q) = %q/%q, want %q/%q",
				tt.content, cmd.Name, cmd.Args, tt.wantName, tt.wantArgs)
		}
	}
}

func TestParseCommandCustomPrefix(t *testing.T) {
	cmd, ok := parseCommand("$$", "$$startstory The tale begins.")
	if !ok || cmd.Name != "startstory" {
		t.Fatalf("parseCommand = %+v, %v", cmd, ok)
	}
	if _, ok := parseCommand("$$", "!startstory nope"); ok {
		t.Error("wrong prefix accepted")
	}
}
