package intent

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"yes", Confirmation},
		{"Yes!", Confirmation},
		{"ok", Confirmation},
		{"sounds good", Confirmation},
		{"that one", Confirmation},
		{"the second one", Confirmation},
		{"go ahead", Confirmation},

		{"are my docker containers running?", StatusQuery},
		{"is the database up?", StatusQuery},
		{"what's the status of my services", StatusQuery},
		{"did the server crash? it seems down", StatusQuery},

		{"take a screenshot of my browser window", CaptureRequest},
		{"look at my screen and tell me what you see", CaptureRequest},
		{"what's on the second monitor", CaptureRequest},

		{"write me a haiku", General},
		{"", General},
		{"yes I would like to discuss the docker documentation in depth, starting with volumes", General},
		{"explain git rebase", General},
	}
	for _, tc := range cases {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestIntentString(t *testing.T) {
	if General.String() != "general" || StatusQuery.String() != "status_query" {
		t.Fatal("unexpected intent names")
	}
}
