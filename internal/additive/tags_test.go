package additive

import (
	"reflect"
	"testing"
)

func TestExtractTags(t *testing.T) {
	organs, topics := ExtractTags([]string{
		"Chronic exposure linked to hepatic stress and renal accumulation.",
		"Possible carcinogenic potential; hyperactivity reported in children.",
	})

	wantOrgans := []string{"kidney", "liver"}
	wantTopics := []string{"cancer", "hyperactivity"}

	if !reflect.DeepEqual(organs, wantOrgans) {
		t.Errorf("organs = %v, want %v", organs, wantOrgans)
	}
	if !reflect.DeepEqual(topics, wantTopics) {
		t.Errorf("topics = %v, want %v", topics, wantTopics)
	}
}

func TestExtractTagsEmpty(t *testing.T) {
	organs, topics := ExtractTags(nil)
	if len(organs) != 0 || len(topics) != 0 {
		t.Errorf("expected no tags for empty input, got %v / %v", organs, topics)
	}

	organs, topics = ExtractTags([]string{"Perfectly benign text."})
	if len(organs) != 0 || len(topics) != 0 {
		t.Errorf("expected no tags for benign text, got %v / %v", organs, topics)
	}
}

func TestExtractTagsDeduplicated(t *testing.T) {
	organs, _ := ExtractTags([]string{"liver damage", "hepatic injury", "the liver again"})
	if len(organs) != 1 || organs[0] != "liver" {
		t.Errorf("organs = %v, want [liver]", organs)
	}
}
