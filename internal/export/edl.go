package export

import (
	"fmt"
	"math"
	"strings"
)

// GenerateEDL renders a CMX3600-style edit decision list from resolved clips.
// Source and record times are frame-based at the project rate; record times
// pack clips back to back so the list imports as a flat cut sequence.
func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffset := 0
	for i, clip := range clips {
		srcIn := framesToTimecode(clip.StartFrame, fps)
		srcOut := framesToTimecode(clip.EndFrame, fps)
		duration := clip.EndFrame - clip.StartFrame
		recIn := framesToTimecode(recordOffset, fps)
		recOut := framesToTimecode(recordOffset+duration, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(clip.ClipName, 64)),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)

		recordOffset += duration
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func framesToTimecode(totalFrames, fps int) string {
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
