// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

// Selection is the chosen video/audio pair plus their positions in the manifest.
type Selection struct {
	VideoIndex int
	AudioIndex int
	Video      VideoTrack
	Audio      AudioTrack
}

// CodecRank orders codec ids: AV1 > HEVC > AVC > anything else.
func CodecRank(codecID int) int {
	switch codecID {
	case CodecAV1:
		return 3
	case CodecHEVC:
		return 2
	case CodecAVC:
		return 1
	default:
		return 0
	}
}

// AudioScore maps audio quality ids to a preference score.
func AudioScore(quality int) int {
	switch quality {
	case 30252: // hi-res lossless
		return 1000
	case 30250: // dolby
		return 900
	case 30280: // 192k
		return 800
	case 30232: // 132k
		return 700
	case 30216: // 64k
		return 600
	default:
		return 500
	}
}

func betterVideo(a, b VideoTrack) bool {
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	if ra, rb := CodecRank(a.CodecID), CodecRank(b.CodecID); ra != rb {
		return ra > rb
	}
	if a.Bandwidth != b.Bandwidth {
		return a.Bandwidth > b.Bandwidth
	}
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return a.BaseURL < b.BaseURL
}

func betterAudio(a, b AudioTrack) bool {
	if sa, sb := AudioScore(a.Quality), AudioScore(b.Quality); sa != sb {
		return sa > sb
	}
	if a.Bandwidth != b.Bandwidth {
		return a.Bandwidth > b.Bandwidth
	}
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	return a.BaseURL < b.BaseURL
}

// BestVideo returns the index of the preferred video track.
func BestVideo(tracks []VideoTrack) (int, error) {
	if len(tracks) == 0 {
		return -1, Errorf(ErrNotFound, "select video", "manifest has no video tracks")
	}
	best := 0
	for i := 1; i < len(tracks); i++ {
		if betterVideo(tracks[i], tracks[best]) {
			best = i
		}
	}
	return best, nil
}

// BestAudio returns the index of the preferred audio track.
func BestAudio(tracks []AudioTrack) (int, error) {
	if len(tracks) == 0 {
		return -1, Errorf(ErrNotFound, "select audio", "manifest has no audio tracks")
	}
	best := 0
	for i := 1; i < len(tracks); i++ {
		if betterAudio(tracks[i], tracks[best]) {
			best = i
		}
	}
	return best, nil
}

// SelectBest picks one video and one audio track from m.
func SelectBest(m TrackManifest) (Selection, error) {
	vi, err := BestVideo(m.Video)
	if err != nil {
		return Selection{}, err
	}
	ai, err := BestAudio(m.Audio)
	if err != nil {
		return Selection{}, err
	}
	return Selection{
		VideoIndex: vi,
		AudioIndex: ai,
		Video:      m.Video[vi],
		Audio:      m.Audio[ai],
	}, nil
}
