package testutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ViewState is the hidden form state the selection pages hand out and
// expect back.
const ViewState = "dDwtMTA4MzM5NzQ3Njs7Pg=="

var slotStarts = []string{"08:30", "10:25", "12:20", "14:15", "16:10", "18:30"}

var dayNames = []string{"Понеділок", "Вівторок", "Середа", "Четвер", "П’ятниця", "Субота"}

// PagePair places one pair on a generated schedule page. Week is 1 or 2,
// Day is 1 (Monday) to 6, Number is 1 to 6.
type PagePair struct {
	Week    int
	Day     int
	Number  int
	Subject string
	Title   string
	Teacher string
	Group   string
	Room    string
}

// SelectionPage renders a selection form with its hidden state fields.
func SelectionPage() string {
	return `<html><body><form method="post">
<input type="hidden" name="__VIEWSTATE" id="__VIEWSTATE" value="` + ViewState + `" />
<input type="hidden" name="__EVENTVALIDATION" id="__EVENTVALIDATION" value="/wEWAgKP" />
<input type="text" name="ctl00$MainContent$ctl00$txtboxGroup" />
</form></body></html>`
}

// ChoicePage renders the page listing several schedules for one name.
func ChoicePage(param string, ids ...uuid.UUID) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="ctl00_MainContent_ctl00_GroupListPanel">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<tr><td><a href="ViewSchedule.aspx?%s=%s">schedule</a></td></tr>`, param, id)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

// SchedulePage renders a two-week schedule page for name.
func SchedulePage(name string, pairs ...PagePair) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	fmt.Fprintf(&b, `<span id="ctl00_MainContent_lblHeader">Розклад занять для: %s</span>`, name)
	writeWeek(&b, "ctl00_MainContent_FirstScheduleTable", 1, pairs)
	writeWeek(&b, "ctl00_MainContent_SecondScheduleTable", 2, pairs)
	b.WriteString(`</body></html>`)
	return b.String()
}

func writeWeek(b *strings.Builder, id string, week int, pairs []PagePair) {
	fmt.Fprintf(b, `<table id="%s"><tr><td></td>`, id)
	for _, day := range dayNames {
		fmt.Fprintf(b, `<td>%s</td>`, day)
	}
	b.WriteString(`</tr>`)

	for slot, start := range slotStarts {
		fmt.Fprintf(b, `<tr><td>%d<br>%s</td>`, slot+1, start)
		for day := range dayNames {
			b.WriteString(`<td>`)
			for _, p := range pairs {
				if p.Week == week && p.Day == day+1 && p.Number == slot+1 {
					writePair(b, p)
				}
			}
			b.WriteString(`</td>`)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</table>`)
}

func writePair(b *strings.Builder, p PagePair) {
	fmt.Fprintf(b, `<span><a href="http://wiki.kpi.ua/index.php/subject" class="plainLink" title="%s">%s</a></span><br>`, p.Title, p.Subject)
	if p.Teacher != "" {
		fmt.Fprintf(b, `<a href="/Schedules/ViewSchedule.aspx?v=%s" class="plainLink">%s</a><br>`, uuid.New(), p.Teacher)
	}
	if p.Group != "" {
		fmt.Fprintf(b, `<a href="/Schedules/ViewSchedule.aspx?g=%s" class="plainLink">%s</a><br>`, uuid.New(), p.Group)
	}
	if p.Room != "" {
		fmt.Fprintf(b, `<a href="http://maps.google.com/?q=50.4,30.4" class="plainLink">%s</a>`, p.Room)
	}
}
