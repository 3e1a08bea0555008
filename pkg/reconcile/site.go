// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
	"github.com/LeeDigitalWorks/plsync/pkg/topology"
)

const (
	siteURL       = "http://www.measurementlab.net/"
	siteMaxSlices = 10
)

// SyncSite converges one site: the site record, its location, its
// operators when AddUsers is set, then every selected node.
func (r *Reconciler) SyncSite(ctx context.Context, site *topology.Site) error {
	if !r.siteSelected(site) {
		return nil
	}
	rec, err := r.MakeSite(ctx, site)
	if err != nil {
		return err
	}
	if err := r.SyncLocation(ctx, rec, site); err != nil {
		return err
	}
	if r.cfg.Steps.AddUsers {
		if err := r.SyncPersonsOnSite(ctx, rec, site); err != nil {
			return err
		}
	}
	for _, node := range site.Nodes() {
		if !r.selected(node) {
			continue
		}
		if err := r.SyncNode(ctx, site, node); err != nil {
			return fmt.Errorf("sync node %s: %w", node.Hostname, err)
		}
	}
	return nil
}

// MakeSite adds the site record or confirms it. Existing records are never
// renamed.
func (r *Reconciler) MakeSite(ctx context.Context, site *topology.Site) (directory.Site, error) {
	recs, err := r.client.GetSites(ctx, directory.Filter{"login_base": site.LoginBase})
	if err != nil {
		return directory.Site{}, err
	}
	found, err := atMostOne(KindSite, site.LoginBase, recs)
	if err != nil {
		return directory.Site{}, err
	}
	if found != nil {
		r.outcome(KindSite, ActionConfirm).Str("login_base", site.LoginBase).Int("site_id", found.SiteID).Msg("Confirmed site")
		return *found, nil
	}

	rec := directory.Site{
		LoginBase:       site.LoginBase,
		Name:            site.DisplayName,
		AbbreviatedName: site.DisplayName,
		URL:             siteURL,
		MaxSlices:       siteMaxSlices,
	}
	id, err := r.client.AddSite(ctx, rec)
	if err != nil {
		return directory.Site{}, err
	}
	rec.SiteID = id
	r.outcome(KindSite, ActionAdd).Str("login_base", site.LoginBase).Int("site_id", id).Msg("Added site")
	return rec, nil
}

// SyncSiteTag adds, updates or confirms a single-valued site tag.
func (r *Reconciler) SyncSiteTag(ctx context.Context, rec directory.Site, tagName, value string) error {
	tags, err := r.client.GetSiteTags(ctx, directory.Filter{"site_id": rec.SiteID, "tagname": tagName})
	if err != nil {
		return err
	}
	key := rec.LoginBase + "/" + tagName
	found, err := atMostOne(KindSiteTag, key, tags)
	if err != nil {
		return err
	}
	switch {
	case found == nil:
		if _, err := r.client.AddSiteTag(ctx, rec.SiteID, tagName, value); err != nil {
			return err
		}
		r.outcome(KindSiteTag, ActionAdd).Str("tag", key).Str("value", value).Msg("Added site tag")
	case found.Value != value:
		if err := r.client.UpdateSiteTag(ctx, found.SiteTagID, value); err != nil {
			return err
		}
		r.outcome(KindSiteTag, ActionUpdate).Str("tag", key).Str("from", found.Value).Str("to", value).Msg("Updated site tag")
	default:
		r.outcome(KindSiteTag, ActionConfirm).Str("tag", key).Str("value", value).Msg("Confirmed site tag")
	}
	return nil
}

// SyncLocation syncs city, country and extra as site tags and compares
// latitude and longitude on the site record directly.
func (r *Reconciler) SyncLocation(ctx context.Context, rec directory.Site, site *topology.Site) error {
	loc := site.Location
	if loc == nil {
		return nil
	}
	if err := r.SyncSiteTag(ctx, rec, "city", loc.City); err != nil {
		return err
	}
	if err := r.SyncSiteTag(ctx, rec, "country", loc.Country); err != nil {
		return err
	}

	update := directory.Fields{}
	if rec.Latitude != loc.Latitude {
		update["latitude"] = loc.Latitude
	}
	if rec.Longitude != loc.Longitude {
		update["longitude"] = loc.Longitude
	}
	if len(update) > 0 {
		if err := r.client.UpdateSite(ctx, rec.SiteID, update); err != nil {
			return err
		}
		r.outcome(KindLocation, ActionUpdate).
			Str("login_base", rec.LoginBase).
			Float64("latitude", loc.Latitude).
			Float64("longitude", loc.Longitude).
			Msg("Updated site coordinates")
	} else {
		r.outcome(KindLocation, ActionConfirm).Str("login_base", rec.LoginBase).Msg("Confirmed site coordinates")
	}

	if loc.Extra != "" {
		return r.SyncSiteTag(ctx, rec, "extra", loc.Extra)
	}
	return nil
}

// SyncPersonsOnSite makes every declared operator a member of the site.
// Members that are not declared are reported and left in place.
func (r *Reconciler) SyncPersonsOnSite(ctx context.Context, rec directory.Site, site *topology.Site) error {
	var members []directory.Person
	if len(rec.PersonIDs) > 0 {
		var err error
		members, err = r.client.GetPersons(ctx, directory.Filter{"person_id": rec.PersonIDs})
		if err != nil {
			return err
		}
	}
	isMember := func(email string) bool {
		return slices.ContainsFunc(members, func(p directory.Person) bool { return p.Email == email })
	}

	for _, op := range site.Operators {
		if isMember(op.Email) {
			r.outcome(KindSiteMember, ActionConfirm).Str("email", op.Email).Str("login_base", site.LoginBase).Msg("Confirmed site member")
			continue
		}
		if r.cfg.Steps.CreateUsers {
			if err := r.MakePerson(ctx, op); err != nil {
				return err
			}
		}
		if err := r.client.AddPersonToSite(ctx, op.Email, site.LoginBase); err != nil {
			return err
		}
		r.outcome(KindSiteMember, ActionAdd).Str("email", op.Email).Str("login_base", site.LoginBase).Msg("Added person to site")
	}

	for _, m := range members {
		declared := slices.ContainsFunc(site.Operators, func(p topology.Person) bool { return p.Email == m.Email })
		if !declared {
			r.outcome(KindSiteMember, ActionSkip).Str("email", m.Email).Str("login_base", site.LoginBase).Msg("Undeclared site member left in place")
		}
	}
	return nil
}

// MakePerson adds and enables a person that has no enabled account.
func (r *Reconciler) MakePerson(ctx context.Context, p topology.Person) error {
	recs, err := r.client.GetPersons(ctx, directory.Filter{"email": p.Email, "enabled": true})
	if err != nil {
		return err
	}
	found, err := atMostOne(KindPerson, p.Email, recs)
	if err != nil {
		return err
	}
	if found != nil {
		r.outcome(KindPerson, ActionConfirm).Str("email", p.Email).Msg("Confirmed person")
		return nil
	}

	id, err := r.client.AddPerson(ctx, directory.Person{Email: p.Email, FirstName: p.FirstName, LastName: p.LastName})
	if err != nil {
		return err
	}
	if err := r.client.UpdatePerson(ctx, id, directory.Fields{"enabled": true}); err != nil {
		return err
	}
	r.outcome(KindPerson, ActionAdd).Str("email", p.Email).Int("person_id", id).Msg("Added person")
	return nil
}
