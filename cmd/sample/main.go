package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jaswdr/faker"

	"invitely/pkg/codec"
	"invitely/pkg/config"
	"invitely/pkg/models"
	"invitely/pkg/services"
	"invitely/pkg/storage"
)

var months = []string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

// sampleProject builds an invitation with made-up names, dates and venue
func sampleProject(fake faker.Faker, slides int) models.Project {
	p := models.NewProject()
	p.Defaults.Color = fake.Color().Hex()

	host := fake.Person().FirstName()
	guest := fake.Person().FirstName()
	venue := fake.Address().StreetAddress() + ", " + fake.Address().City()
	date := fmt.Sprintf("%s %d", months[fake.IntBetween(0, 11)], fake.IntBetween(1, 28))

	texts := []string{
		host + " & " + guest,
		"invite you to celebrate\n" + date,
		venue,
	}
	for i := 0; i < slides-1; i++ {
		texts = append(texts, strings.TrimSuffix(fake.Lorem().Sentence(6), "."))
	}

	work := models.Size{W: models.DefaultWorkWidth, H: models.DefaultWorkHeight}
	p.Slides = p.Slides[:0]
	for i := 0; i < slides; i++ {
		s := models.NewSlide(work)
		top := work.H * 0.2
		for j, text := range texts {
			if j%slides != i {
				continue
			}
			l := models.NewLayer(text, work.W*0.1, top, p.Defaults)
			l.Width = models.Float(work.W * 0.8)
			l.FadeInMs = 400
			s.Layers = append(s.Layers, l)
			top += l.FontSize * 2.5
		}
		p.Slides = append(p.Slides, s)
	}
	p.RSVP = models.RSVPYes
	p.MapQuery = venue
	p.Normalize()
	return p
}

func main() {
	slides := flag.Int("slides", 2, "number of slides")
	save := flag.Bool("save", true, "save the sample as the local project")
	flag.Parse()

	if *slides < 1 {
		fmt.Fprintln(os.Stderr, "need at least one slide")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	p := sampleProject(faker.New(), *slides)

	if *save {
		kv, err := storage.NewFileKV(cfg.DataPath, cfg.StorageQuotaBytes, log.Default())
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		persistence := services.NewPersistence(kv, nil, nil, log.Default())
		persistence.SetKey(cfg.StorageKey)
		err = persistence.SaveLocal(p)
		kv.Close()
		if err != nil {
			log.Fatalf("Failed to save sample: %v", err)
		}
		fmt.Printf("Saved sample invitation to %s\n", cfg.DataPath)
	}

	url, err := codec.ViewerURL(cfg.ViewerBaseURL, p)
	if err != nil {
		log.Fatalf("Failed to build viewer link: %v", err)
	}
	fmt.Println(url)
}
