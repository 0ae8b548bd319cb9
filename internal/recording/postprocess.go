package recording

import (
	"context"
	"os"
	"os/exec"

	"github.com/motivo-run/motivo-server/internal/logger"
)

// postProcessTool is the subprocess this package looks for to rewrite a
// written video into a web-compatible container (moov atom up front). It's
// optional: spec.md §4.8 only asks for this "if such a tool is available",
// so a missing binary is not an error.
const postProcessTool = "ffmpeg"

// postProcess rewrites path for web playback in place if postProcessTool is
// on PATH, grounded on internal/sandbox/apple.go's
// exec.LookPath-then-exec.Command subprocess idiom. A missing tool or a
// failed rewrite is logged and leaves the original file untouched — it
// never fails the recording stop it's called from.
func postProcess(ctx context.Context, path string) {
	bin, err := exec.LookPath(postProcessTool)
	if err != nil {
		return
	}

	tmp := path + ".faststart"
	cmd := exec.CommandContext(ctx, bin, "-y", "-i", path, "-movflags", "+faststart", "-c", "copy", tmp)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.With("component", "recording").Warn("post-process rewrite failed, keeping original video", "error", err, "output", string(out))
		os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.With("component", "recording").Warn("post-process rename failed, keeping original video", "error", err)
		os.Remove(tmp)
	}
}
