package toc

import (
	"github.com/dotecxy/legado2-sub001/crawler/source"
)

const (
	alignWindow     = 10
	alignSimilarity = 0.96
)

// Align finds the position of the reader's saved chapter in a refreshed
// chapter list. It prefers a near-identical title in a window around the
// scaled old index, then an equal chapter ordinal, and otherwise keeps the
// old index clamped to the new list.
func Align(oldIndex int, oldTitle string, oldListSize int, list []source.BookChapter) int {
	if oldIndex <= 0 {
		return 0
	}
	newSize := len(list)
	if newSize == 0 {
		return oldIndex
	}

	pureOld := Strip(oldTitle)
	oldOrdinal := ExtractOrdinal(oldTitle)

	durIndex := oldIndex
	if oldListSize != 0 {
		durIndex = oldIndex * oldListSize / newSize
	}
	lo := max(0, min(oldIndex, durIndex)-alignWindow)
	hi := min(newSize-1, max(oldIndex, durIndex)+alignWindow)

	nameIndex, nameSim := 0, 0.0
	if pureOld != "" {
		for i := lo; i <= hi; i++ {
			if sim := similarity(pureOld, Strip(list[i].Title)); sim > nameSim {
				nameIndex, nameSim = i, sim
			}
		}
	}

	ordIndex, ordDiff := 0, -1
	if nameSim < alignSimilarity && oldOrdinal > 0 {
		for i := lo; i <= hi; i++ {
			diff := abs(ExtractOrdinal(list[i].Title) - oldOrdinal)
			if ordDiff < 0 || diff < ordDiff {
				ordIndex, ordDiff = i, diff
			}
			if diff == 0 {
				break
			}
		}
	}

	switch {
	case nameSim > alignSimilarity:
		return nameIndex
	case ordDiff == 0:
		return ordIndex
	}
	return min(max(oldIndex, 0), newSize-1)
}

// similarity is the Jaccard coefficient of the unique characters of a and b
func similarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(setA)+len(setB)-inter)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
