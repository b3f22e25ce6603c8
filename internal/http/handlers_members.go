package http

import (
	"errors"
	"net/http"

	"committee/internal/core"
	"committee/internal/directory"
	"committee/internal/log"
)

type membersPage struct {
	pageData
	Members []core.Member
}

type memberFormPage struct {
	pageData
	Member      core.Member
	Editing     bool
	Action      string
	EntryMonths core.Months
	// Detail explains a rejected form; directory failures stay generic.
	Detail string
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := membersPage{pageData: pageData{Title: "Committee Members", Nav: "members"}}
	b := NewHTMXResponse()

	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Member list failed", log.FieldOperation, log.OpList, log.FieldError, err)
		page.Error = msgLoadUsers
		b.Status(http.StatusBadGateway)
	}
	page.Members = members
	s.render(w, r, b, "members.html", page)
}

func (s *Server) handleNewMember(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, NewHTMXResponse(), "member_form.html", s.memberForm(core.Member{Role: core.RoleUser}, false))
}

func (s *Server) handleEditMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Member list failed", log.FieldOperation, log.OpList, log.FieldError, err)
		page := s.memberForm(core.Member{ID: id}, true)
		page.Error = msgLoadUsers
		s.render(w, r, NewHTMXResponse().Status(http.StatusBadGateway), "member_form.html", page)
		return
	}
	m, ok := core.FindMember(members, id)
	if !ok {
		NotFoundError("Member not found").Write(w)
		return
	}
	s.render(w, r, NewHTMXResponse(), "member_form.html", s.memberForm(m, true))
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	s.saveMember(w, r, "")
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	s.saveMember(w, r, r.PathValue("id"))
}

// saveMember creates a member when id is empty and updates it otherwise.
// On success the browser goes back to the list, which refetches the roster.
func (s *Server) saveMember(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	editing := id != ""
	failure, op := msgAddUser, log.OpCreate
	if editing {
		failure, op = msgUpdateUser, log.OpUpdate
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	m, err := ParseMemberForm(p)
	m.ID = id
	if err != nil {
		page := s.memberForm(m, editing)
		page.Error = failure
		page.Detail = err.Error()
		s.render(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity), "member_form.html", page)
		return
	}

	if editing {
		err = s.dir.UpdateMember(ctx, m)
	} else {
		err = s.dir.CreateMember(ctx, m)
	}
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Member write failed",
			log.FieldOperation, op,
			log.FieldMemberID, id,
			log.FieldError, err)
		status := http.StatusBadGateway
		if errors.Is(err, directory.ErrMemberNotFound) {
			status = http.StatusNotFound
		}
		page := s.memberForm(m, editing)
		page.Error = failure
		s.render(w, r, NewHTMXResponse().Status(status).TriggerErrorNotification(failure), "member_form.html", page)
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Member saved", log.FieldOperation, op, log.FieldMemberID, id)
	NewHTMXResponse().Redirect(r, "/members").Write(w)
}

func (s *Server) memberForm(m core.Member, editing bool) memberFormPage {
	page := memberFormPage{
		pageData:    pageData{Title: "Add New Member", Nav: "members"},
		Member:      m,
		Editing:     editing,
		Action:      "/members",
		EntryMonths: core.EntryMonths,
	}
	if editing {
		page.Title = "Edit Member"
		page.Action = "/members/" + m.ID
	}
	return page
}
