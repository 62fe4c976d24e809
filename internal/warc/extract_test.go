package warc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frenchParagraph = "La bibliothèque municipale ouvre ses portes tous les jours de la semaine. " +
	"Les habitants du quartier peuvent y emprunter des livres, des revues et des films. " +
	"Chaque mois, des ateliers de lecture sont organisés pour les enfants et les adultes. " +
	"Les bénévoles accueillent les visiteurs et les aident à trouver les ouvrages qu'ils cherchent."

const englishParagraph = "The public library opens its doors every day of the week. " +
	"Residents of the neighborhood can borrow books, magazines and films. " +
	"Every month, reading workshops are organized for children and adults alike. " +
	"Volunteers welcome visitors and help them find the books they are looking for."

func articleHTML(title, paragraph string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><article><h1>%s</h1>", title, title)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "<p>%s</p>", paragraph)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func TestPageFromHTMLFrench(t *testing.T) {
	html := articleHTML("La bibliothèque du quartier", frenchParagraph)

	page, ok := PageFromHTML("https://exemple.fr/bibliotheque", html)
	require.True(t, ok)

	assert.Equal(t, "https://exemple.fr/bibliotheque", page.URL)
	assert.Equal(t, "La bibliothèque du quartier", page.H1)
	assert.Contains(t, page.Text, "bibliothèque municipale")
}

func TestPageFromHTMLEnglishSkipped(t *testing.T) {
	html := articleHTML("The neighborhood library", englishParagraph)

	_, ok := PageFromHTML("https://example.com/library", html)
	assert.False(t, ok)
}

func TestPageFromHTMLEmptyBody(t *testing.T) {
	_, ok := PageFromHTML("https://exemple.fr/vide", "<html><body></body></html>")
	assert.False(t, ok)
}

func TestPageFromHTMLBadURI(t *testing.T) {
	// An unparseable target URI must not break extraction.
	html := articleHTML("La bibliothèque du quartier", frenchParagraph)

	page, ok := PageFromHTML("ht tp://%%%", html)
	require.True(t, ok)
	assert.Equal(t, "ht tp://%%%", page.URL)
}

func TestFirstH1(t *testing.T) {
	html := "<html><body><h1> Premier titre </h1><h1>Second titre</h1></body></html>"
	assert.Equal(t, "Premier titre", firstH1(html))
}

func TestFirstH1Missing(t *testing.T) {
	assert.Equal(t, "", firstH1("<html><body><p>pas de titre</p></body></html>"))
}
