package ai

// SpeakerSegment непрерывный отрезок речи одного спикера
// Speaker - call-local метка кластера, не сохраняемый идентификатор
type SpeakerSegment struct {
	Speaker int     `json:"speaker"`
	Start   float64 `json:"start"` // Секунды
	End     float64 `json:"end"`
}

// DefaultMergeGapSec максимальная пауза между окнами одного спикера,
// при которой они сливаются в один сегмент
const DefaultMergeGapSec = 0.5

// ReconstructSegments собирает упорядоченные непересекающиеся сегменты
// из окон и их меток кластеров
//
// Один линейный проход: окно продолжает текущий сегмент пока метка
// не меняется и пауза не превышает mergeGap. При смене метки текущий
// сегмент закрывается на старте следующего окна (окна перекрываются),
// при превышении паузы - на конце текущего окна. Последний сегмент
// всегда закрывается концом записи
func ReconstructSegments(windows []Window, labels []int, mergeGap float64) []SpeakerSegment {
	if len(windows) == 0 || len(windows) != len(labels) {
		return nil
	}
	if mergeGap <= 0 {
		mergeGap = DefaultMergeGapSec
	}

	var segments []SpeakerSegment
	current := SpeakerSegment{
		Speaker: labels[0],
		Start:   windows[0].Start,
		End:     windows[0].End,
	}

	for i := 1; i < len(windows); i++ {
		w := windows[i]
		label := labels[i]
		gap := w.Start - current.End

		if label == current.Speaker && gap <= mergeGap {
			// Продолжение речи того же спикера
			if w.End > current.End {
				current.End = w.End
			}
			continue
		}

		if label != current.Speaker && w.Start < current.End {
			// Смена спикера на перекрывающемся окне: граница по началу
			// следующего окна, чтобы сегменты не пересекались
			current.End = w.Start
		}
		if current.End > current.Start {
			segments = append(segments, current)
		}
		current = SpeakerSegment{Speaker: label, Start: w.Start, End: w.End}
	}

	segments = append(segments, current)
	return segments
}
