package imaging

import (
	"errors"
	"testing"
)

func TestResolve_FallbackOrder(t *testing.T) {
	all := ImageDescriptor{
		Thumbnail: "https://cdn.example.com/p1/thumb.png",
		Preview:   "https://cdn.example.com/p1/preview.png",
		Full:      "https://cdn.example.com/p1/full.png",
		Legacy:    "https://cdn.example.com/p1/img.png",
	}

	tests := []struct {
		name      string
		desc      ImageDescriptor
		requested Tier
		wantURL   string
		wantTier  Tier
	}{
		{"thumbnail exact", all, TierThumbnail, all.Thumbnail, TierThumbnail},
		{"preview exact", all, TierPreview, all.Preview, TierPreview},
		{"full exact", all, TierFull, all.Full, TierFull},
		{"thumbnail only full", ImageDescriptor{Full: all.Full}, TierThumbnail, all.Full, TierFull},
		{"full only thumbnail", ImageDescriptor{Thumbnail: all.Thumbnail}, TierFull, all.Thumbnail, TierThumbnail},
		{"thumbnail falls to preview", ImageDescriptor{Preview: all.Preview, Full: all.Full}, TierThumbnail, all.Preview, TierPreview},
		{"thumbnail prefers legacy over full", ImageDescriptor{Legacy: all.Legacy, Full: all.Full}, TierThumbnail, all.Legacy, TierLegacy},
		{"preview falls to legacy", ImageDescriptor{Legacy: all.Legacy, Full: all.Full, Thumbnail: all.Thumbnail}, TierPreview, all.Legacy, TierLegacy},
		{"preview falls to full before thumbnail", ImageDescriptor{Full: all.Full, Thumbnail: all.Thumbnail}, TierPreview, all.Full, TierFull},
		{"full prefers preview over legacy", ImageDescriptor{Preview: all.Preview, Legacy: all.Legacy}, TierFull, all.Preview, TierPreview},
		{"unknown tier treated as preview", all, Tier("huge"), all.Preview, TierPreview},
		{"whitespace urls skipped", ImageDescriptor{Preview: "  ", Full: all.Full}, TierPreview, all.Full, TierFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.desc, tt.requested)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if res.URL != tt.wantURL {
				t.Errorf("URL: got %q, want %q", res.URL, tt.wantURL)
			}
			if res.Tier != tt.wantTier {
				t.Errorf("Tier: got %s, want %s", res.Tier, tt.wantTier)
			}
		})
	}
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve(ImageDescriptor{}, TierFull)
	if !errors.Is(err, ErrNoImageURL) {
		t.Errorf("expected ErrNoImageURL, got %v", err)
	}
}

func TestResolution_Fallback(t *testing.T) {
	res, err := Resolve(ImageDescriptor{Full: "https://x/full.png"}, TierThumbnail)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Fallback() {
		t.Error("expected fallback when thumbnail missing")
	}
	if res.Requested != TierThumbnail {
		t.Errorf("Requested: got %s, want thumbnail", res.Requested)
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in     string
		want   Tier
		wantOK bool
	}{
		{"thumbnail", TierThumbnail, true},
		{"Preview", TierPreview, true},
		{" full ", TierFull, true},
		{"legacy", TierPreview, false},
		{"", TierPreview, false},
	}
	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseTier(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
