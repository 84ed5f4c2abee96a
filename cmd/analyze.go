package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/andresmejia3/pupilscan/internal/biomarker"
	"github.com/andresmejia3/pupilscan/internal/export"
	"github.com/andresmejia3/pupilscan/internal/store"
	"github.com/andresmejia3/pupilscan/internal/types"
	"github.com/andresmejia3/pupilscan/internal/utils"
	"github.com/andresmejia3/pupilscan/internal/worker"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const megabyte = 1024 * 1024

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// analyzeOptions holds the flags of the analyze command.
type analyzeOptions struct {
	InputPath     string
	LandmarksPath string
	Patient       string
	Stimulus      float64
	NumEngines    int
	OutputDir     string
	Full          bool
	NoStore       bool
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute pupil and gaze biomarkers for one test administration",
	Long: "Reads an eye video (decoded with ffmpeg and sent to the landmark workers) or a JSONL file " +
		"of precomputed landmarks, then reports latency, constriction amplitude, PIPR, gaze dispersion and saccades.",
	Run: func(cmd *cobra.Command, args []string) {
		opts := analyzeOpts
		if !cmd.Flags().Changed("stimulus") {
			opts.Stimulus = Cfg.Protocol.StimulusDelay
		}
		if !cmd.Flags().Changed("engines") {
			opts.NumEngines = Cfg.Worker.Engines
		}
		if !cmd.Flags().Changed("output") {
			opts.OutputDir = Cfg.Output.Dir
		}
		runAnalyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.InputPath, "input", "i", "", "Path to eye video")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.LandmarksPath, "landmarks", "l", "", "Path to JSONL file of precomputed landmarks (skips video decoding)")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.Patient, "patient", "p", "Unnamed", "Patient label stored with the result")
	analyzeCmd.Flags().Float64VarP(&analyzeOpts.Stimulus, "stimulus", "s", 0, "Stimulus onset in seconds after the first frame (default: protocol stimulus_delay)")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.NumEngines, "engines", "e", 1, "Number of parallel landmark workers (default: worker.engines)")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.OutputDir, "output", "o", "", "Directory for the series CSV and summary JSON (default: output.dir)")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Full, "full", false, "Analyze every frame instead of cutting at the protocol capture duration")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.NoStore, "no-store", false, "Do not persist the result")

	analyzeCmd.MarkFlagsMutuallyExclusive("input", "landmarks")
	analyzeCmd.MarkFlagsOneRequired("input", "landmarks")
	rootCmd.AddCommand(analyzeCmd)
}

// runAnalyze collects per-frame estimates, computes the summary and reports it.
func runAnalyze(ctx context.Context, opts analyzeOptions) {
	if err := validateAnalyzeFlags(&opts); err != nil {
		utils.Die("Invalid arguments", err, nil)
	}

	source := opts.InputPath
	if source == "" {
		source = opts.LandmarksPath
	}
	videoID, err := utils.GenerateVideoID(source)
	if err != nil {
		utils.Die("Failed to generate video ID", err, nil)
	}
	fmt.Fprintf(os.Stderr, "📼 Processing Video ID: %s (patient %s)\n", videoID[:12], opts.Patient)

	analyzer := biomarker.New(Cfg.Protocol, Log)

	var estimates []biomarker.FrameEstimate
	if opts.LandmarksPath != "" {
		f, err := os.Open(opts.LandmarksPath)
		if err != nil {
			utils.Die("Failed to open landmarks file", err, nil)
		}
		estimates, err = readLandmarks(f, analyzer)
		f.Close()
		if err != nil {
			utils.Die("Failed to read landmarks", err, nil)
		}
	} else {
		timeout, _ := time.ParseDuration(Cfg.Worker.ReadTimeout) // validated by config.Load
		estimates = scanVideo(ctx, opts, analyzer, worker.Config{Script: Cfg.Worker.Script, ReadTimeout: timeout})
	}

	var st store.Store
	if !opts.NoStore {
		st = DB
	}
	out, err := finishRun(ctx, opts, analyzer, estimates, videoID, st)
	if err != nil {
		if reason := biomarker.Reason(err); reason != "" {
			Log.WithFields(logrus.Fields{"patient": opts.Patient, "reason": reason}).Warn("administration rejected")
			utils.Die("Administration failed - retry capture ("+reason+")", err, nil)
		}
		utils.Die("Failed to record result", err, nil)
	}

	fmt.Fprintf(os.Stderr, "\n📊 RESULT %s\n", out.ID)
	fmt.Println(renderSummary(out.Summary))
	for _, n := range out.Summary.Notes {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", n)
	}
	fmt.Fprintf(os.Stderr, "💾 Series:  %s\n", out.Paths.CSV)
	fmt.Fprintf(os.Stderr, "💾 Summary: %s\n", out.Paths.Summary)
	if st == nil {
		fmt.Fprintf(os.Stderr, "ℹ️  Result not stored (--no-store)\n")
	}
}

// validateAnalyzeFlags ensures all CLI arguments are valid before starting heavy processes.
func validateAnalyzeFlags(opts *analyzeOptions) error {
	path := opts.InputPath
	if path == "" {
		path = opts.LandmarksPath
	}
	if path == "" {
		return fmt.Errorf("one of --input or --landmarks is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected a file", path)
	}
	if opts.Stimulus < 0 {
		return fmt.Errorf("stimulus onset must be >= 0, got %g", opts.Stimulus)
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.Patient == "" {
		opts.Patient = "Unnamed"
	}
	return nil
}

// runOutcome is what a successful administration produced.
type runOutcome struct {
	ID      string
	Summary biomarker.Summary
	Paths   export.Paths
}

// finishRun trims the capture window, analyzes, exports and (when st is non-nil) stores the result.
func finishRun(ctx context.Context, opts analyzeOptions, a *biomarker.Analyzer, estimates []biomarker.FrameEstimate, videoID string, st store.Store) (*runOutcome, error) {
	if len(estimates) == 0 {
		return nil, fmt.Errorf("%s: %w", opts.Patient, biomarker.ErrNoFrames)
	}
	start := firstTimestamp(estimates)
	if !opts.Full {
		estimates = clipCapture(estimates, start, a.Config().CaptureDuration)
	}

	res, err := a.Analyze(opts.Patient, estimates, start+opts.Stimulus)
	if err != nil {
		return nil, err
	}

	out := &runOutcome{ID: uuid.NewString(), Summary: res.Summary.Rounded()}
	out.Paths, err = export.WriteRun(opts.OutputDir, export.SummaryDocument{
		ID:      out.ID,
		Patient: opts.Patient,
		Summary: out.Summary,
	}, res.Series.Rows)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	Log.WithFields(logrus.Fields{
		"id":       out.ID,
		"patient":  opts.Patient,
		"frames":   len(res.Series.Rows),
		"dropped":  res.Series.Dropped,
		"latency":  out.Summary.Latency,
		"saccades": out.Summary.Saccades,
	}).Info("administration analyzed")

	if st == nil {
		return out, nil
	}
	err = st.SaveResult(ctx, store.Record{
		ID:          out.ID,
		PatientName: opts.Patient,
		VideoID:     videoID,
		RecordedAt:  time.Now(),
		Summary:     out.Summary,
		CSVPath:     out.Paths.CSV,
		Series:      res.Series.Rows,
	})
	if err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}
	return out, nil
}

func firstTimestamp(estimates []biomarker.FrameEstimate) float64 {
	start := estimates[0].Timestamp
	for _, e := range estimates[1:] {
		if e.Timestamp < start {
			start = e.Timestamp
		}
	}
	return start
}

// clipCapture drops frames recorded more than duration seconds after start.
func clipCapture(estimates []biomarker.FrameEstimate, start, duration float64) []biomarker.FrameEstimate {
	kept := estimates[:0:0]
	for _, e := range estimates {
		if e.Timestamp-start <= duration {
			kept = append(kept, e)
		}
	}
	return kept
}

// landmarkLine is one frame of a precomputed landmarks file.
type landmarkLine struct {
	T         float64            `json:"t"`
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Landmarks map[int][2]float64 `json:"landmarks"`
}

// readLandmarks parses JSONL landmark frames and converts each one as it is read.
func readLandmarks(r io.Reader, a *biomarker.Analyzer) ([]biomarker.FrameEstimate, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*megabyte)

	var out []biomarker.FrameEstimate
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var fr landmarkLine
		if err := json.Unmarshal(line, &fr); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		var lm *types.LandmarkSet
		if fr.Landmarks != nil {
			if fr.Width <= 0 || fr.Height <= 0 {
				return nil, fmt.Errorf("line %d: landmarks need a positive width and height, got %dx%d", lineNo, fr.Width, fr.Height)
			}
			lm = &types.LandmarkSet{Width: fr.Width, Height: fr.Height, Points: make(map[int]types.Point, len(fr.Landmarks))}
			for idx, p := range fr.Landmarks {
				lm.Points[idx] = types.Point{X: p[0], Y: p[1]}
			}
		}
		out = append(out, a.Extract(fr.T, lm))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Buffer pool to reduce GC pressure during decoding
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// frameResult wraps the output from a worker to be sent to the aggregator
type frameResult struct {
	Index     int
	Timestamp float64
	Landmarks *types.LandmarkSet
}

// scanVideo orchestrates decoding: FFmpeg streaming, the worker pool and progress tracking.
func scanVideo(ctx context.Context, opts analyzeOptions, a *biomarker.Analyzer, wcfg worker.Config) []biomarker.FrameEstimate {
	fps, err := utils.GetVideoFPS(opts.InputPath)
	if err != nil {
		utils.Die("Failed to determine video FPS", err, nil)
	}
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Landmark Workers at %.2f fps...\n", opts.NumEngines, fps)

	totalVideoFrames := utils.GetTotalFrames(opts.InputPath)
	if totalVideoFrames <= 0 {
		totalVideoFrames = -1
	}
	bar := newProgressBar(totalVideoFrames, "🔍 Extracting landmarks")

	taskChan := make(chan types.FrameTask, opts.NumEngines)
	resultsChan := make(chan frameResult, opts.NumEngines*2)
	var wg sync.WaitGroup

	// Must run concurrently to prevent deadlock on resultsChan
	var estimates []biomarker.FrameEstimate
	aggDone := make(chan struct{})
	go func() {
		estimates = collectResults(resultsChan, a)
		close(aggDone)
	}()

	for i := 0; i < opts.NumEngines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			startWorker(ctx, workerID, wcfg, taskChan, resultsChan)
		}(i)
	}

	ffmpeg := utils.NewFFmpegCmd(ctx, opts.InputPath)
	var stderrBuf bytes.Buffer
	ffmpeg.Stderr = &stderrBuf

	ffmpegOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		utils.Die("Failed to create FFmpeg stdout pipe", err, nil)
	}
	defer ffmpegOut.Close()

	if err := ffmpeg.Start(); err != nil {
		utils.Die("Failed to start FFmpeg", err, nil)
	}

	scanner := bufio.NewScanner(ffmpegOut)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	captureLimit := a.Config().CaptureDuration
	decoded, sent := 0, 0
	for scanner.Scan() {
		idx := decoded
		decoded++
		bar.Add(1)
		ts := float64(idx) / fps
		if !opts.Full && ts > captureLimit {
			// Past the protocol window; keep draining so ffmpeg can exit.
			continue
		}
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < len(scanner.Bytes()) {
			buf = make([]byte, len(scanner.Bytes()))
		}
		buf = buf[:len(scanner.Bytes())]
		copy(buf, scanner.Bytes())
		taskChan <- types.FrameTask{Index: idx, Timestamp: ts, Data: buf}
		sent++
	}
	if err := scanner.Err(); err != nil {
		utils.Die("Frame scanner failed", err, nil)
	}

	if err := ffmpeg.Wait(); err != nil {
		if stderrBuf.Len() > 0 {
			fmt.Fprintf(os.Stderr, "\nFFmpeg Logs:\n%s\n", stderrBuf.String())
		}
		utils.Die("FFmpeg execution failed", err, nil)
	}

	close(taskChan)
	wg.Wait()
	close(resultsChan)
	<-aggDone

	bar.Finish()
	fmt.Fprintf(os.Stderr, "\n🏁 Decoding Complete. Sent %d of %d frames to landmark workers.\n", sent, decoded)
	return estimates
}

// startWorker manages the lifecycle of a single Python worker process.
func startWorker(ctx context.Context, id int, cfg worker.Config, tasks <-chan types.FrameTask, results chan<- frameResult) {
	w, err := worker.NewLandmarkWorker(ctx, id, cfg)
	if err != nil {
		utils.Die("Worker startup failed", err, nil)
	}
	defer w.Close()

	for task := range tasks {
		lm, err := w.ProcessFrame(task.Data)
		frameBufferPool.Put(task.Data[:0])
		if err != nil {
			// DRAIN: Wait for process to exit and capture final stderr logs
			w.Close()
			utils.Die("Landmark worker crashed", err, w.Cmd)
		}
		results <- frameResult{Index: task.Index, Timestamp: task.Timestamp, Landmarks: lm}
	}
}

// collectResults restores frame order and converts each frame to an estimate as soon as it is next in line.
func collectResults(results <-chan frameResult, a *biomarker.Analyzer) []biomarker.FrameEstimate {
	// Worker 2 might finish before Worker 1
	buffer := make(map[int]frameResult)
	nextFrame := 0
	var out []biomarker.FrameEstimate

	for res := range results {
		buffer[res.Index] = res
		for {
			frame, ok := buffer[nextFrame]
			if !ok {
				break
			}
			delete(buffer, nextFrame)
			out = append(out, a.Extract(frame.Timestamp, frame.Landmarks))
			nextFrame++
		}
	}

	// Gaps only happen if a worker skipped a frame; keep what is left in index order.
	if len(buffer) > 0 {
		rest := make([]int, 0, len(buffer))
		for idx := range buffer {
			rest = append(rest, idx)
		}
		sort.Ints(rest)
		for _, idx := range rest {
			out = append(out, a.Extract(buffer[idx].Timestamp, buffer[idx].Landmarks))
		}
	}
	return out
}

// newProgressBar draws to stderr only when it is a terminal.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if !isTerminal(os.Stderr) {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
}
