package devbackend

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/s/eduPortal/internal/models"
)

// Участники группы приходят полями в стиле PHP: users[0][id_user], users[0][name_user].
var memberField = regexp.MustCompile(`^users\[(\d+)\]\[(id_user|name_user)\]$`)

// parseMembers собирает участников группы из формы в порядке индексов.
// Записи без корректного id и повторы пропускаются.
func parseMembers(form url.Values) []models.GroupMember {
	type entry struct {
		id   string
		name string
	}
	byIndex := map[int]*entry{}
	for key, values := range form {
		m := memberField.FindStringSubmatch(key)
		if m == nil || len(values) == 0 {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		e := byIndex[idx]
		if e == nil {
			e = &entry{}
			byIndex[idx] = e
		}
		if m[2] == "id_user" {
			e.id = values[0]
		} else {
			e.name = values[0]
		}
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	seen := map[models.ID]bool{}
	members := make([]models.GroupMember, 0, len(indexes))
	for _, idx := range indexes {
		e := byIndex[idx]
		id, err := models.ParseID(e.id)
		if err != nil || id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, models.GroupMember{UserID: id, Name: strings.TrimSpace(e.name)})
	}
	return members
}
