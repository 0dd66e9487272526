package widget

// Widget identifiers.
const (
	ResearchProgressID = "research-progress"
	QuickStatsID       = "quick-stats"
	RecentPapersID     = "recent-papers"
	WritingGoalsID     = "writing-goals"
	CollaborationID    = "collaboration"
	CalendarID         = "calendar"
	TrendsID           = "trends"
	NotesID            = "notes"
	CitationsID        = "citations"
	SuggestionsID      = "suggestions"
	TimeTrackerID      = "time-tracker"
	CustomID           = "custom"
)

// Data is implemented by every typed widget payload.
type Data interface {
	// setDefaults fills nested defaults and replaces nil slices after decoding.
	setDefaults()
}

// Shared shapes

type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

type StatCard struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"` // float64 | string
	Unit  string      `json:"unit,omitempty"`
	Trend *float64    `json:"trend,omitempty"` // percentage change
	Color string      `json:"color,omitempty"`
}

func emptyTrend(pts []TrendPoint) []TrendPoint {
	if pts == nil {
		return []TrendPoint{}
	}
	return pts
}

func emptyStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// research-progress

type ResearchProgress struct {
	PapersRead       int          `json:"papersRead"`
	NotesCreated     int          `json:"notesCreated"`
	GoalsCompleted   int          `json:"goalsCompleted"`
	GoalsTotal       int          `json:"goalsTotal"`
	WeeklyTrend      []TrendPoint `json:"weeklyTrend"`
	MonthlyTrend     []TrendPoint `json:"monthlyTrend"`
	ResearchAccuracy float64      `json:"researchAccuracy"`
	Period           string       `json:"period"`    // week | month | year
	ChartType        string       `json:"chartType"` // line | bar | area
}

func newResearchProgress() Data {
	return &ResearchProgress{Period: "month", ChartType: "line"}
}

func (d *ResearchProgress) setDefaults() {
	d.WeeklyTrend = emptyTrend(d.WeeklyTrend)
	d.MonthlyTrend = emptyTrend(d.MonthlyTrend)
}

// quick-stats

type QuickStats struct {
	TotalPapers   int        `json:"totalPapers"`
	TotalNotes    int        `json:"totalNotes"`
	TotalWords    int        `json:"totalWords"`
	TotalReadTime float64    `json:"totalReadTime"` // minutes
	AvgReadTime   float64    `json:"avgReadTime"`   // minutes per paper
	AvgNoteLength float64    `json:"avgNoteLength"` // words per note
	Stats         []StatCard `json:"stats"`
	LastUpdated   string     `json:"lastUpdated,omitempty"`
}

func newQuickStats() Data { return new(QuickStats) }

func (d *QuickStats) setDefaults() {
	if d.Stats == nil {
		d.Stats = []StatCard{}
	}
}

// recent-papers

type Paper struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	PublicationDate string   `json:"publicationDate,omitempty"`
	URL             string   `json:"url,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	ReadAt          string   `json:"readAt,omitempty"`
	Notes           int      `json:"notes"`
	Status          string   `json:"status"` // reading | completed | saved
}

type RecentPapers struct {
	Papers []Paper `json:"papers"`
	Count  int     `json:"count"`
	SortBy string  `json:"sortBy"` // date | title | authors
	Total  int     `json:"total"`  // papers in the library
}

func newRecentPapers() Data {
	return &RecentPapers{Count: 5, SortBy: "date"}
}

func (d *RecentPapers) setDefaults() {
	if d.Papers == nil {
		d.Papers = []Paper{}
	}
	for i := range d.Papers {
		p := &d.Papers[i]
		p.Authors = emptyStrings(p.Authors)
		if p.Status == "" {
			p.Status = "saved"
		}
	}
}

// writing-goals

type WritingGoal struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	TargetWords  *int    `json:"targetWords,omitempty"`
	CurrentWords int     `json:"currentWords"`
	TargetDate   string  `json:"targetDate,omitempty"`
	Status       string  `json:"status"`   // active | completed | abandoned
	Priority     string  `json:"priority"` // low | medium | high
	Progress     float64 `json:"progress"`
}

type WritingGoals struct {
	Goals          []WritingGoal `json:"goals"`
	TotalGoals     int           `json:"totalGoals"`
	CompletedGoals int           `json:"completedGoals"`
	ActiveGoals    int           `json:"activeGoals"`
}

func newWritingGoals() Data { return new(WritingGoals) }

func (d *WritingGoals) setDefaults() {
	if d.Goals == nil {
		d.Goals = []WritingGoal{}
	}
	for i := range d.Goals {
		g := &d.Goals[i]
		if g.Status == "" {
			g.Status = "active"
		}
		if g.Priority == "" {
			g.Priority = "medium"
		}
	}
}

// collaboration

type TeamMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
	Status   string `json:"status"` // active | idle | offline
	LastSeen string `json:"lastSeen,omitempty"`
}

type Activity struct {
	UserID    string `json:"userId"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

type Collaboration struct {
	TeamMembers    []TeamMember `json:"teamMembers"`
	TotalMembers   int          `json:"totalMembers"`
	ActiveNow      int          `json:"activeNow"`
	PendingInvites []string     `json:"pendingInvites"`
	RecentActivity []Activity   `json:"recentActivity"`
}

func newCollaboration() Data { return new(Collaboration) }

func (d *Collaboration) setDefaults() {
	if d.TeamMembers == nil {
		d.TeamMembers = []TeamMember{}
	}
	for i := range d.TeamMembers {
		if d.TeamMembers[i].Status == "" {
			d.TeamMembers[i].Status = "offline"
		}
	}
	d.PendingInvites = emptyStrings(d.PendingInvites)
	if d.RecentActivity == nil {
		d.RecentActivity = []Activity{}
	}
}

// calendar

type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
	Type        string `json:"type"` // deadline | meeting | reminder | milestone
	Color       string `json:"color,omitempty"`
	Completed   bool   `json:"completed"`
}

type EventRef struct {
	Title string `json:"title"`
	Date  string `json:"date"`
}

type Calendar struct {
	Events        []Event   `json:"events"`
	UpcomingCount int       `json:"upcomingCount"`
	OverdueCount  int       `json:"overdueCount"`
	NextEvent     *EventRef `json:"nextEvent,omitempty"`
}

func newCalendar() Data { return new(Calendar) }

func (d *Calendar) setDefaults() {
	if d.Events == nil {
		d.Events = []Event{}
	}
	for i := range d.Events {
		if d.Events[i].Type == "" {
			d.Events[i].Type = "reminder"
		}
	}
}

// trends

type Topic struct {
	ID       string  `json:"id"`
	Topic    string  `json:"topic"`
	Mentions int     `json:"mentions"`
	Trend    float64 `json:"trend"` // percentage change
	Color    string  `json:"color,omitempty"`
	Category string  `json:"category,omitempty"`
}

type Trends struct {
	Trends       []Topic      `json:"trends"`
	TimeRange    string       `json:"timeRange"` // day | week | month
	TotalTopics  int          `json:"totalTopics"`
	RisingCount  int          `json:"risingCount"`
	FallingCount int          `json:"fallingCount"`
	Chart        []TrendPoint `json:"chart"`
}

func newTrends() Data { return &Trends{TimeRange: "week"} }

func (d *Trends) setDefaults() {
	if d.Trends == nil {
		d.Trends = []Topic{}
	}
	d.Chart = emptyTrend(d.Chart)
}

// notes

type Note struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Preview   string   `json:"preview"`
	Content   string   `json:"content,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
	Tags      []string `json:"tags"`
	Color     string   `json:"color,omitempty"`
	Pinned    bool     `json:"pinned"`
}

type Notes struct {
	Notes       []Note `json:"notes"`
	TotalNotes  int    `json:"totalNotes"`
	PinnedNotes int    `json:"pinnedNotes"`
	RecentCount int    `json:"recentCount"`
}

func newNotes() Data { return &Notes{RecentCount: 5} }

func (d *Notes) setDefaults() {
	if d.Notes == nil {
		d.Notes = []Note{}
	}
	for i := range d.Notes {
		d.Notes[i].Tags = emptyStrings(d.Notes[i].Tags)
	}
}

// citations

type CitationFormat struct {
	Format   string   `json:"format"` // APA, MLA, Chicago, ...
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

type RecentCitation struct {
	Citation string `json:"citation"`
	Date     string `json:"date"`
	Format   string `json:"format"`
}

type Citations struct {
	Citations      []CitationFormat `json:"citations"`
	TotalCitations int              `json:"totalCitations"`
	MostUsed       string           `json:"mostUsed,omitempty"`
	RecentlyAdded  []RecentCitation `json:"recentlyAdded"`
}

func newCitations() Data { return new(Citations) }

func (d *Citations) setDefaults() {
	if d.Citations == nil {
		d.Citations = []CitationFormat{}
	}
	for i := range d.Citations {
		d.Citations[i].Examples = emptyStrings(d.Citations[i].Examples)
	}
	if d.RecentlyAdded == nil {
		d.RecentlyAdded = []RecentCitation{}
	}
}

// suggestions

type Suggestion struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Source      string  `json:"source"` // AI, User, System
	Relevance   float64 `json:"relevance"`
	Type        string  `json:"type"` // paper | topic | goal | collaborator
	Accepted    bool    `json:"accepted"`
}

type Suggestions struct {
	Suggestions      []Suggestion `json:"suggestions"`
	TotalSuggestions int          `json:"totalSuggestions"`
	AcceptedCount    int          `json:"acceptedCount"`
	RejectedCount    int          `json:"rejectedCount"`
}

func newSuggestions() Data { return new(Suggestions) }

func (d *Suggestions) setDefaults() {
	if d.Suggestions == nil {
		d.Suggestions = []Suggestion{}
	}
	for i := range d.Suggestions {
		if d.Suggestions[i].Type == "" {
			d.Suggestions[i].Type = "paper"
		}
	}
}

// time-tracker

type TimeCategory struct {
	Name       string  `json:"name"`
	Minutes    float64 `json:"minutes"`
	Percentage float64 `json:"percentage"`
	Color      string  `json:"color,omitempty"`
}

type TimeTracker struct {
	Categories           []TimeCategory `json:"categories"`
	TotalMinutes         float64        `json:"totalMinutes"`
	SessionCount         int            `json:"sessionCount"`
	AverageSessionLength float64        `json:"averageSessionLength"`
	LongestSession       float64        `json:"longestSession"`
	TimeRange            string         `json:"timeRange"` // day | week | month
}

func newTimeTracker() Data { return &TimeTracker{TimeRange: "day"} }

func (d *TimeTracker) setDefaults() {
	if d.Categories == nil {
		d.Categories = []TimeCategory{}
	}
}

// custom

type Custom struct {
	Title      string                 `json:"title"`
	HTML       string                 `json:"html,omitempty"`
	CSS        string                 `json:"css,omitempty"`
	JavaScript string                 `json:"javascript,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Height     *float64               `json:"height,omitempty"`
	Width      *float64               `json:"width,omitempty"`
}

func newCustom() Data { return new(Custom) }

func (d *Custom) setDefaults() {}
