package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/luddite478/fortuned"
	"github.com/luddite478/fortuned/gomidi"
	"github.com/luddite478/fortuned/oto"
	"github.com/luddite478/fortuned/sequencer"
	"github.com/luddite478/fortuned/version"
)

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, everything is placed in the same directory where the original project file is.")
	play := flag.Bool("p", false, "Play the input projects (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered project as .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Output the rendered project as .wav file. By default, saves stereo float32 buffer to disk.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	useMidi := flag.Bool("m", false, "Open the first MIDI input for previewing sample slots while playing.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut {
		*play = true // if the user gives nothing to output, then the default behaviour is just to play the file
	}
	process := func(filename string) error {
		output := func(extension string, contents []byte) error {
			if *stdout {
				os.Stdout.Write(contents)
				return nil
			}
			_, name := filepath.Split(filename)
			dir := *directory
			if dir == "" {
				var err error
				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
				}
			}
			name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %v", dir, err)
			}
			f := filepath.Join(dir, name)
			if err := os.WriteFile(f, contents, 0644); err != nil {
				return fmt.Errorf("could not write file %v: %v", f, err)
			}
			return nil
		}
		inputBytes, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("could not read file %v: %v", filename, err)
		}
		project, err := fortuned.UnmarshalProject(inputBytes)
		if err != nil {
			return fmt.Errorf("could not parse %v: %v", filename, err)
		}
		if *rawOut || *wavOut {
			buffer, err := render(&project)
			if err != nil {
				return fmt.Errorf("rendering failed: %v", err)
			}
			if *rawOut {
				raw, err := buffer.Raw(*pcm)
				if err != nil {
					return fmt.Errorf("could not generate .raw file: %v", err)
				}
				if err := output(".raw", raw); err != nil {
					return fmt.Errorf("error outputting .raw file: %v", err)
				}
			}
			if *wavOut {
				wav, err := buffer.Wav(*pcm)
				if err != nil {
					return fmt.Errorf("could not generate .wav file: %v", err)
				}
				if err := output(".wav", wav); err != nil {
					return fmt.Errorf("error outputting .wav file: %v", err)
				}
			}
		}
		if *play {
			if err := playProject(&project, *useMidi); err != nil {
				return fmt.Errorf("playback failed: %v", err)
			}
		}
		return nil
	}
	retval := 0
	for _, param := range flag.Args() {
		if info, err := os.Stat(param); err == nil && info.IsDir() {
			files, err := filepath.Glob(filepath.Join(param, "*.yml"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not glob the path %v for yml files: %v\n", param, err)
				retval = 1
				continue
			}
			for _, file := range files {
				if err := process(file); err != nil {
					fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", file, err)
					retval = 1
				}
			}
		} else {
			if err := process(param); err != nil {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", param, err)
				retval = 1
			}
		}
	}
	os.Exit(retval)
}

const renderChunkFrames = 2048

// render plays the project offline in song mode, once through all sections
// with their loop counts, plus a short tail for releases to fade.
func render(project *fortuned.Project) (fortuned.AudioBuffer, error) {
	engine := sequencer.NewEngine()
	engine.Start()
	defer engine.Close()
	if err := engine.Model.LoadProject(project); err != nil {
		return nil, err
	}
	engine.Model.SetMode(fortuned.SongMode, false)
	engine.Model.PlayFrom(0)
	frames := songLengthFrames(project)
	tail := fortuned.SampleRate / 10 // room for the last releases to fade
	buffer := make(fortuned.AudioBuffer, frames+tail)
	renderInto(engine.Player, buffer[:frames])
	engine.Model.Stop()
	renderInto(engine.Player, buffer[frames:])
	return buffer, nil
}

func renderInto(player *sequencer.Player, buffer fortuned.AudioBuffer) {
	for pos := 0; pos < len(buffer); pos += renderChunkFrames {
		end := pos + renderChunkFrames
		if end > len(buffer) {
			end = len(buffer)
		}
		player.Process(buffer[pos:end])
	}
}

// songLengthFrames is one full pass of the song: every section repeated by
// its loop count.
func songLengthFrames(project *fortuned.Project) int {
	steps := 0
	for i, s := range project.Table.Sections {
		loops := fortuned.ClampSectionLoops(project.SectionLoops[i])
		steps += s.NumSteps * loops
	}
	return steps * fortuned.SamplesPerStep(project.BPM)
}

// playProject runs the project through the audio device: song mode plays one
// full pass, loop mode runs until interrupted.
func playProject(project *fortuned.Project, useMidi bool) error {
	audioContext, err := oto.NewContext()
	if err != nil {
		return fmt.Errorf("could not acquire oto AudioContext: %v", err)
	}
	defer audioContext.Close()
	engine := sequencer.NewEngine()
	engine.Start()
	defer engine.Close()
	if err := engine.Model.LoadProject(project); err != nil {
		return err
	}
	if useMidi {
		midiContext := gomidi.NewContext(engine.Broker)
		defer midiContext.Close()
		midiContext.InputDevices(func(d gomidi.RTMIDIDevice) bool {
			if err := d.Open(); err != nil {
				fmt.Fprintf(os.Stderr, "could not open MIDI device %v: %v\n", d, err)
				return true
			}
			fmt.Fprintf(os.Stderr, "listening to MIDI device %v\n", d)
			return false
		})
	}
	output, err := audioContext.Play(engine.Player)
	if err != nil {
		return err
	}
	defer output.Close()
	engine.Model.PlayFrom(0)
	if project.Mode == fortuned.SongMode {
		length := time.Duration(songLengthFrames(project)) * time.Second / fortuned.SampleRate
		time.Sleep(length + 200*time.Millisecond)
		engine.Model.Stop()
		return nil
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	engine.Model.Stop()
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Command line utility for playing and rendering .yml project files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
