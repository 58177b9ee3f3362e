package course

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cornelabs/lms/core"
)

var (
	youTubeURLTag  = "youtubeurl"
	youTubeURLText = "must be a valid YouTube video URL"

	lessonURLTag  = "lessonurl"
	lessonURLText = "must be a valid http(s) URL"

	quizNoQuestionsTag  = "quiznoquestions"
	quizNoQuestionsText = "a quiz must have at least one question"

	quizQuestionTag  = "quizquestion"
	quizQuestionText = "every question needs a text and at least 2 non-empty options"

	quizCorrectTag  = "quizcorrect"
	quizCorrectText = "every question needs a correct_index pointing to one of its options"

	quizDuplicateTag  = "quizduplicate"
	quizDuplicateText = "question ids must be unique"

	passingScoreTag  = "passingscore"
	passingScoreText = "passing_score must be between 0 and 100"

	youTubeIDRegex = regexp.MustCompile(
		`^(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|live/|v/)|youtu\.be/)([A-Za-z0-9_-]{11})(?:[?&#/].*)?$`,
	)
)

func newID() string {
	return uuid.New().String()
}

// InitValidators registers the course validators. core.InitValidators must be called first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(lessonStructValidation, LessonInput{})
	core.RegisterCustomTranslation(validate, translator, youTubeURLTag, youTubeURLText)
	core.RegisterCustomTranslation(validate, translator, lessonURLTag, lessonURLText)
	core.RegisterCustomTranslation(validate, translator, quizNoQuestionsTag, quizNoQuestionsText)
	core.RegisterCustomTranslation(validate, translator, quizQuestionTag, quizQuestionText)
	core.RegisterCustomTranslation(validate, translator, quizCorrectTag, quizCorrectText)
	core.RegisterCustomTranslation(validate, translator, quizDuplicateTag, quizDuplicateText)
	core.RegisterCustomTranslation(validate, translator, passingScoreTag, passingScoreText)
}

// YouTubeID extracts the video id out of the usual YouTube URL shapes, or returns "".
func YouTubeID(rawURL string) string {
	m := youTubeIDRegex.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return ""
	}
	return m[1]
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// lessonStructValidation checks the fields required by each lesson type.
func lessonStructValidation(sl validator.StructLevel) {
	li, ok := sl.Current().Interface().(LessonInput)
	if !ok {
		return
	}

	switch li.Type {
	case LessonVideo:
		if li.VideoURL == "" {
			sl.ReportError(li.VideoURL, "video_url", "VideoURL", "required", "")
		} else if !isHTTPURL(li.VideoURL) {
			sl.ReportError(li.VideoURL, "video_url", "VideoURL", lessonURLTag, "")
		}
	case LessonYouTube:
		if li.YouTubeURL == "" {
			sl.ReportError(li.YouTubeURL, "youtube_url", "YouTubeURL", "required", "")
		} else if YouTubeID(li.YouTubeURL) == "" {
			sl.ReportError(li.YouTubeURL, "youtube_url", "YouTubeURL", youTubeURLTag, "")
		}
	case LessonReading:
		if strings.TrimSpace(li.Content) == "" {
			sl.ReportError(li.Content, "content", "Content", "required", "")
		}
	case LessonAssignment:
		if li.AssignmentData == nil || li.AssignmentData.Prompt == "" {
			sl.ReportError(li.AssignmentData, "assignment_data", "AssignmentData", "required", "")
		}
	case LessonQuiz:
		if tag := quizDataErrorTag(li.QuizData); tag != "" {
			sl.ReportError(li.QuizData, "quiz_data", "QuizData", tag, "")
		}
	}
}

// quizDataErrorTag returns the tag of the first problem found in qd, or "".
func quizDataErrorTag(qd *QuizData) string {
	if qd == nil || len(qd.Questions) == 0 {
		return quizNoQuestionsTag
	}
	if qd.PassingScore < 0 || qd.PassingScore > 100 {
		return passingScoreTag
	}
	ids := make(map[string]bool, len(qd.Questions))
	for _, q := range qd.Questions {
		if q.Question == "" || len(q.Options) < 2 {
			return quizQuestionTag
		}
		for _, opt := range q.Options {
			if opt == "" {
				return quizQuestionTag
			}
		}
		if q.CorrectIndex == nil || *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
			return quizCorrectTag
		}
		if q.ID != "" {
			if ids[q.ID] {
				return quizDuplicateTag
			}
			ids[q.ID] = true
		}
	}
	return ""
}

// sanitizeFilename keeps a safe, readable version of an uploaded file name.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), ".-")
	if cleaned == "" {
		return "file"
	}
	if len(cleaned) > 100 {
		cleaned = cleaned[len(cleaned)-100:]
	}
	return cleaned
}

func objectKey(courseID, filename string, unixMillis int64) string {
	return fmt.Sprintf("%s/%d-%s", courseID, unixMillis, sanitizeFilename(filename))
}
