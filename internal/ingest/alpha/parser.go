package alpha

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// Line shapes of an export:
//
//	"Push · Day 1";"2026-02-17 5:04 h";"1:12 hr"            session
//	"1. Bench Press · Barbell · 6 reps";"WU1 · 22,5 kg · 10 reps<br>..."   exercise (+ warmups)
//	#;KG;REPS;RIR                                            column header
//	1;102,5;6;0                                              working set
var (
	sessionRe  = regexp.MustCompile(`^"(.+)";"(\d{4}-\d{2}-\d{2}\s+\d+:\d+)\s+h";"(.+)"$`)
	exerciseRe = regexp.MustCompile(`^"(\d+)\.\s+(.+?)(?:\s+·\s+(\S.*?))?\s+·\s+(\d+)\s+reps(.*?)"(?:;"(.+)")?$`)
	setRe      = regexp.MustCompile(`^(\d+);(.+);(\d+);(.+)$`)
	warmupRe   = regexp.MustCompile(`WU(\d+)\s+·\s+(.+?)\s+kg\s+·\s+(\d+)\s+reps`)
	durationRe = regexp.MustCompile(`^(?:(\d+):(\d{2})\s*hr|(\d+)\s*min)$`)
)

const columnHeader = "#;KG;REPS;RIR"

// Parse reads an Alpha Progression CSV export with session times in UTC.
func Parse(r io.Reader) ([]models.AlphaSession, error) {
	return ParseIn(r, time.UTC)
}

// ParseIn reads an Alpha Progression CSV export. The export carries wall-clock
// start times without a zone; they are interpreted in loc. Lines that match no
// known shape are ignored.
func ParseIn(r io.Reader, loc *time.Location) ([]models.AlphaSession, error) {
	p := &parser{loc: loc}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if err := p.line(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	p.endSession()
	return p.sessions, nil
}

type parser struct {
	loc      *time.Location
	sessions []models.AlphaSession
	session  *models.AlphaSession
	exercise *models.AlphaExercise
}

func (p *parser) line(line string) error {
	switch {
	case line == "":
		// A blank line ends the session.
		p.endSession()
	case line == columnHeader:
	case sessionRe.MatchString(line):
		return p.startSession(sessionRe.FindStringSubmatch(line))
	case exerciseRe.MatchString(line):
		return p.startExercise(exerciseRe.FindStringSubmatch(line), line)
	case setRe.MatchString(line):
		return p.addSet(setRe.FindStringSubmatch(line), line)
	}
	return nil
}

func (p *parser) endExercise() {
	if p.exercise != nil {
		p.session.Exercises = append(p.session.Exercises, *p.exercise)
		p.exercise = nil
	}
}

func (p *parser) endSession() {
	if p.session == nil {
		return
	}
	p.endExercise()
	p.sessions = append(p.sessions, *p.session)
	p.session = nil
}

func (p *parser) startSession(m []string) error {
	p.endSession()
	date, err := parseSessionDate(m[2], p.loc)
	if err != nil {
		return err
	}
	p.session = &models.AlphaSession{
		Name:        m[1],
		Date:        date,
		Duration:    m[3],
		DurationSec: parseDuration(m[3]),
	}
	return nil
}

func (p *parser) startExercise(m []string, line string) error {
	if p.session == nil {
		return fmt.Errorf("exercise without session: %q", line)
	}
	p.endExercise()
	num, _ := strconv.Atoi(m[1])
	target, _ := strconv.Atoi(m[4])
	p.exercise = &models.AlphaExercise{
		Number:     num,
		Name:       strings.TrimSpace(m[2]),
		Equipment:  strings.TrimSpace(m[3]),
		TargetReps: target,
		Sets:       parseWarmups(m[6]),
	}
	return nil
}

func (p *parser) addSet(m []string, line string) error {
	if p.exercise == nil {
		return fmt.Errorf("set data without exercise: %q", line)
	}
	num, _ := strconv.Atoi(m[1])
	reps, _ := strconv.Atoi(m[3])
	weight, plus := parseWeight(m[2])
	p.exercise.Sets = append(p.exercise.Sets, models.AlphaSet{
		Number:           num,
		WeightKg:         weight,
		IsBodyweightPlus: plus,
		Reps:             reps,
		RIR:              parseDecimal(m[4]),
	})
	return nil
}

// parseSessionDate accepts "2026-02-19 4:54" and "2026-02-19 16:54".
func parseSessionDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 3:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse session date %q", s)
}

// parseDuration converts "1:02 hr" or "48 min" to seconds, 0 if unrecognised.
func parseDuration(s string) int {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	switch {
	case m == nil:
		return 0
	case m[3] != "":
		mins, _ := strconv.Atoi(m[3])
		return mins * 60
	}
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return hours*3600 + mins*60
}

// parseWarmups reads "WU1 · 37,5 kg · 9 reps<br>WU2 · ..." into warmup sets.
func parseWarmups(s string) []models.AlphaSet {
	if s == "" {
		return nil
	}
	var sets []models.AlphaSet
	for _, part := range strings.Split(s, "<br>") {
		m := warmupRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		reps, _ := strconv.Atoi(m[3])
		weight, plus := parseWeight(m[2])
		sets = append(sets, models.AlphaSet{
			Number:           num,
			WeightKg:         weight,
			IsBodyweightPlus: plus,
			Reps:             reps,
			IsWarmup:         true,
		})
	}
	return sets
}

// parseWeight reads "102,5" as 102.5 kg and "+35" as bodyweight plus 35 kg.
func parseWeight(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		return parseDecimal(rest), true
	}
	return parseDecimal(s), false
}

// parseDecimal reads a decimal with a comma separator, 0 if malformed.
func parseDecimal(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	return f
}
